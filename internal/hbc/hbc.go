// Package hbc reads serialized bytecode modules: header, function table,
// string and filename tables, the instruction segment, and the trailing
// epilogue. It exposes a read-only Provider over a deserialized module.
package hbc

import (
	"encoding/binary"
	"fmt"
)

// Magic identifies a bytecode module file ("HBC_" in little-endian order).
const Magic uint32 = 0x5F434248

// Version is the current bytecode format version.
const Version uint32 = 1

const (
	headerSize         = 28
	functionHeaderSize = 24
)

// FunctionHeader describes one function in the module.
type FunctionHeader struct {
	Offset     uint32 // offset into the instruction segment; doubles as virtual offset
	Size       uint32 // bytecode size in bytes
	ParamCount uint32
	NameID     uint32 // index into the string table
	FilenameID uint32 // index into the filename table
	SourceLine uint32 // 1-based line in the source file, 0 if unknown
}

// Provider is the in-memory handle over a deserialized module. All accessors
// are read-only; a Provider is safe to share across engine calls.
type Provider struct {
	version         uint32
	globalCodeIndex uint32
	segmentSize     uint32
	functions       []FunctionHeader
	strings         []string
	filenames       []string
	inst            []byte
	epilogue        []byte
}

type reader struct {
	data []byte
	off  int
}

func (r *reader) u32(what string) (uint32, error) {
	if r.off+4 > len(r.data) {
		return 0, fmt.Errorf("truncated module: missing %s at offset %d", what, r.off)
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) bytes(n int, what string) ([]byte, error) {
	if n < 0 || r.off+n > len(r.data) {
		return nil, fmt.Errorf("truncated module: %s overruns buffer at offset %d", what, r.off)
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) stringTable(count uint32, what string) ([]string, error) {
	table := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		n, err := r.u32(what + " entry length")
		if err != nil {
			return nil, err
		}
		b, err := r.bytes(int(n), what+" entry")
		if err != nil {
			return nil, err
		}
		table = append(table, string(b))
	}
	return table, nil
}

// Load deserializes a bytecode module from data. The returned Provider keeps
// references into data; the caller must not mutate it afterwards.
func Load(data []byte) (*Provider, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("buffer too small for bytecode header: %d bytes", len(data))
	}
	r := &reader{data: data}

	magic, _ := r.u32("magic")
	if magic != Magic {
		return nil, fmt.Errorf("bad magic: 0x%08X", magic)
	}
	version, _ := r.u32("version")
	if version != Version {
		return nil, fmt.Errorf("unsupported bytecode version: %d (expected %d)", version, Version)
	}
	functionCount, _ := r.u32("function count")
	stringCount, _ := r.u32("string count")
	filenameCount, _ := r.u32("filename count")
	globalCodeIndex, _ := r.u32("global code index")
	segmentSize, _ := r.u32("instruction segment size")

	p := &Provider{
		version:         version,
		globalCodeIndex: globalCodeIndex,
		segmentSize:     segmentSize,
	}

	p.functions = make([]FunctionHeader, 0, functionCount)
	for i := uint32(0); i < functionCount; i++ {
		raw, err := r.bytes(functionHeaderSize, "function header")
		if err != nil {
			return nil, err
		}
		p.functions = append(p.functions, FunctionHeader{
			Offset:     binary.LittleEndian.Uint32(raw[0:]),
			Size:       binary.LittleEndian.Uint32(raw[4:]),
			ParamCount: binary.LittleEndian.Uint32(raw[8:]),
			NameID:     binary.LittleEndian.Uint32(raw[12:]),
			FilenameID: binary.LittleEndian.Uint32(raw[16:]),
			SourceLine: binary.LittleEndian.Uint32(raw[20:]),
		})
	}

	var err error
	if p.strings, err = r.stringTable(stringCount, "string table"); err != nil {
		return nil, err
	}
	if p.filenames, err = r.stringTable(filenameCount, "filename table"); err != nil {
		return nil, err
	}

	if p.inst, err = r.bytes(int(segmentSize), "instruction segment"); err != nil {
		return nil, err
	}
	for id, fn := range p.functions {
		if uint64(fn.Offset)+uint64(fn.Size) > uint64(segmentSize) {
			return nil, fmt.Errorf("function %d overruns instruction segment", id)
		}
	}
	if globalCodeIndex >= functionCount && functionCount > 0 {
		return nil, fmt.Errorf("global code index %d out of range", globalCodeIndex)
	}

	p.epilogue = data[r.off:]
	return p, nil
}

// FunctionCount returns the number of functions in the module.
func (p *Provider) FunctionCount() uint32 { return uint32(len(p.functions)) }

// FunctionHeader returns the header for the given function ID.
// The ID must be in range.
func (p *Provider) FunctionHeader(id uint32) FunctionHeader { return p.functions[id] }

// GlobalCodeIndex returns the function ID of the module's entry function.
func (p *Provider) GlobalCodeIndex() uint32 { return p.globalCodeIndex }

// BytecodeVersion returns the format version the module was serialized with.
func (p *Provider) BytecodeVersion() uint32 { return p.version }

// SegmentSize returns the size of the instruction segment in bytes.
func (p *Provider) SegmentSize() uint32 { return p.segmentSize }

// StringCount returns the number of entries in the string table.
func (p *Provider) StringCount() uint32 { return uint32(len(p.strings)) }

// String returns the string table entry at id.
func (p *Provider) String(id uint32) (string, bool) {
	if id >= uint32(len(p.strings)) {
		return "", false
	}
	return p.strings[id], true
}

// FilenameCount returns the number of entries in the filename table.
func (p *Provider) FilenameCount() uint32 { return uint32(len(p.filenames)) }

// Filename returns the filename table entry at id.
func (p *Provider) Filename(id uint32) (string, bool) {
	if id >= uint32(len(p.filenames)) {
		return "", false
	}
	return p.filenames[id], true
}

// FunctionName returns the name of a function, or a synthesized placeholder
// when the name string is empty or missing.
func (p *Provider) FunctionName(id uint32) string {
	if id >= uint32(len(p.functions)) {
		return ""
	}
	if s, ok := p.String(p.functions[id].NameID); ok && s != "" {
		return s
	}
	return fmt.Sprintf("function@%d", p.functions[id].Offset)
}

// Bytecode returns the instruction bytes of the given function.
func (p *Provider) Bytecode(id uint32) []byte {
	fn := p.functions[id]
	return p.inst[fn.Offset : fn.Offset+fn.Size]
}

// Epilogue returns the raw bytes trailing the declared end of the module.
// The slice is empty when the module carries no epilogue.
func (p *Provider) Epilogue() []byte { return p.epilogue }

// VirtualOffsetToFunction resolves a byte offset into the instruction
// segment to the function containing it.
func (p *Provider) VirtualOffsetToFunction(off uint32) (uint32, bool) {
	for id, fn := range p.functions {
		if off >= fn.Offset && off < fn.Offset+fn.Size {
			return uint32(id), true
		}
	}
	return 0, false
}
