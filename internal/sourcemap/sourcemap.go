// Package sourcemap parses JSON source maps (format version 3) and resolves
// generated positions back to original source locations.
package sourcemap

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Position is an original source location. Line and Column are 1-based.
type Position struct {
	Source string
	Line   int
	Column int
}

type segment struct {
	genColumn  int // 0-based generated column
	sourceIdx  int
	sourceLine int // 0-based
	sourceCol  int // 0-based
}

// SourceMap is a parsed source map.
type SourceMap struct {
	sources []string
	lines   [][]segment // per 0-based generated line, sorted by genColumn
}

type rawMap struct {
	Version  int      `json:"version"`
	Sources  []string `json:"sources"`
	Names    []string `json:"names"`
	Mappings string   `json:"mappings"`
}

// Parse decodes data as a version-3 source map.
func Parse(data []byte) (*SourceMap, error) {
	var raw rawMap
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse source map: %w", err)
	}
	if raw.Version != 3 {
		return nil, fmt.Errorf("unsupported source map version: %d", raw.Version)
	}

	sm := &SourceMap{sources: raw.Sources}

	// Source index, line and column carry across lines; the generated
	// column resets at each ';'.
	srcIdx, srcLine, srcCol := 0, 0, 0
	for _, lineStr := range strings.Split(raw.Mappings, ";") {
		var segs []segment
		genCol := 0
		for _, segStr := range strings.Split(lineStr, ",") {
			if segStr == "" {
				continue
			}
			fields, err := decodeVLQ(segStr)
			if err != nil {
				return nil, fmt.Errorf("parse source map: %w", err)
			}
			genCol += fields[0]
			if len(fields) >= 4 {
				srcIdx += fields[1]
				srcLine += fields[2]
				srcCol += fields[3]
				if srcIdx < 0 || srcIdx >= len(raw.Sources) {
					return nil, fmt.Errorf("parse source map: source index %d out of range", srcIdx)
				}
				segs = append(segs, segment{
					genColumn:  genCol,
					sourceIdx:  srcIdx,
					sourceLine: srcLine,
					sourceCol:  srcCol,
				})
			}
		}
		sm.lines = append(sm.lines, segs)
	}
	return sm, nil
}

// Lookup resolves a generated position (1-based line, 0-based column) to its
// original location. Returns false when the position is unmapped.
func (sm *SourceMap) Lookup(line, column int) (Position, bool) {
	idx := line - 1
	if idx < 0 || idx >= len(sm.lines) || len(sm.lines[idx]) == 0 {
		return Position{}, false
	}
	segs := sm.lines[idx]
	// Greatest segment with genColumn <= column, else the first one.
	i := sort.Search(len(segs), func(i int) bool { return segs[i].genColumn > column })
	if i > 0 {
		i--
	}
	s := segs[i]
	return Position{
		Source: sm.sources[s.sourceIdx],
		Line:   s.sourceLine + 1,
		Column: s.sourceCol + 1,
	}, true
}

const base64Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

var base64Lookup = func() [128]int8 {
	var t [128]int8
	for i := range t {
		t[i] = -1
	}
	for i, c := range base64Chars {
		t[c] = int8(i)
	}
	return t
}()

// decodeVLQ decodes one comma-free mapping segment into its fields.
func decodeVLQ(s string) ([]int, error) {
	var fields []int
	value, shift := 0, 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 128 || base64Lookup[c] < 0 {
			return nil, fmt.Errorf("invalid VLQ character %q", c)
		}
		digit := int(base64Lookup[c])
		value |= (digit & 0x1f) << shift
		if digit&0x20 != 0 {
			shift += 5
			continue
		}
		// Low bit is the sign.
		if value&1 != 0 {
			fields = append(fields, -(value >> 1))
		} else {
			fields = append(fields, value>>1)
		}
		value, shift = 0, 0
	}
	if shift != 0 {
		return nil, fmt.Errorf("unterminated VLQ segment %q", s)
	}
	if len(fields) != 1 && len(fields) != 4 && len(fields) != 5 {
		return nil, fmt.Errorf("malformed mapping segment %q: %d fields", s, len(fields))
	}
	return fields, nil
}
