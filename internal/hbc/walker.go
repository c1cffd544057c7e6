package hbc

import (
	"fmt"
	"io"
)

// SectionRange is the byte range [Start, End) of one section in the
// serialized module.
type SectionRange struct {
	Name  string
	Start uint64
	End   uint64
}

// SectionWalker recomputes the byte layout of a serialized module from its
// Provider. The walker never re-reads the file; ranges are derived from the
// table sizes recorded in the header.
type SectionWalker struct {
	provider *Provider
	fileSize uint64
}

// NewSectionWalker returns a walker for a module of fileSize bytes backed by p.
func NewSectionWalker(p *Provider, fileSize uint64) *SectionWalker {
	return &SectionWalker{provider: p, fileSize: fileSize}
}

// Sections returns the section ranges in file order.
func (w *SectionWalker) Sections() []SectionRange {
	p := w.provider
	var ranges []SectionRange
	pos := uint64(0)
	add := func(name string, size uint64) {
		ranges = append(ranges, SectionRange{Name: name, Start: pos, End: pos + size})
		pos += size
	}

	add("header", headerSize)
	add("function table", uint64(len(p.functions))*functionHeaderSize)

	stringBytes := uint64(0)
	for _, s := range p.strings {
		stringBytes += 4 + uint64(len(s))
	}
	add("string table", stringBytes)

	filenameBytes := uint64(0)
	for _, s := range p.filenames {
		filenameBytes += 4 + uint64(len(s))
	}
	add("filename table", filenameBytes)

	add("instruction segment", uint64(p.segmentSize))
	add("epilogue", uint64(len(p.epilogue)))
	return ranges
}

// PrintSectionRanges writes one line per section with its start, end, and
// size. Values are printed in hex when humanize is set.
func (w *SectionWalker) PrintSectionRanges(out io.Writer, humanize bool) {
	fmt.Fprintf(out, "Bytecode sections (%d bytes total):\n", w.fileSize)
	for _, s := range w.Sections() {
		if humanize {
			fmt.Fprintf(out, "  %-20s: [0x%x, 0x%x) 0x%x bytes\n", s.Name, s.Start, s.End, s.End-s.Start)
		} else {
			fmt.Fprintf(out, "  %-20s: [%d, %d) %d bytes\n", s.Name, s.Start, s.End, s.End-s.Start)
		}
	}
}
