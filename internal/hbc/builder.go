package hbc

import (
	"bytes"
	"encoding/binary"
)

// Builder assembles a bytecode module in memory and serializes it into the
// on-disk layout that Load understands. It is the write-side counterpart of
// Provider and is primarily used to construct fixtures and test modules.
type Builder struct {
	strings   []string
	filenames []string
	functions []FunctionHeader
	code      bytes.Buffer
	epilogue  []byte
	globalIdx uint32
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// AddString interns s in the string table and returns its ID.
func (b *Builder) AddString(s string) uint32 {
	for i, existing := range b.strings {
		if existing == s {
			return uint32(i)
		}
	}
	b.strings = append(b.strings, s)
	return uint32(len(b.strings) - 1)
}

// AddFilename interns s in the filename table and returns its ID.
func (b *Builder) AddFilename(s string) uint32 {
	for i, existing := range b.filenames {
		if existing == s {
			return uint32(i)
		}
	}
	b.filenames = append(b.filenames, s)
	return uint32(len(b.filenames) - 1)
}

// AddFunction appends a function with the given metadata and bytecode and
// returns its function ID. The function's virtual offset is its position in
// the instruction segment at the time of the call.
func (b *Builder) AddFunction(name string, filenameID, sourceLine, paramCount uint32, code []byte) uint32 {
	hdr := FunctionHeader{
		Offset:     uint32(b.code.Len()),
		Size:       uint32(len(code)),
		ParamCount: paramCount,
		NameID:     b.AddString(name),
		FilenameID: filenameID,
		SourceLine: sourceLine,
	}
	b.code.Write(code)
	b.functions = append(b.functions, hdr)
	return uint32(len(b.functions) - 1)
}

// SetGlobalCodeIndex marks the function ID executed at module start.
func (b *Builder) SetGlobalCodeIndex(id uint32) { b.globalIdx = id }

// SetEpilogue sets the raw bytes appended after the instruction segment.
func (b *Builder) SetEpilogue(data []byte) { b.epilogue = data }

// Bytes serializes the module.
func (b *Builder) Bytes() []byte {
	var out bytes.Buffer
	u32 := func(v uint32) {
		var raw [4]byte
		binary.LittleEndian.PutUint32(raw[:], v)
		out.Write(raw[:])
	}

	u32(Magic)
	u32(Version)
	u32(uint32(len(b.functions)))
	u32(uint32(len(b.strings)))
	u32(uint32(len(b.filenames)))
	u32(b.globalIdx)
	u32(uint32(b.code.Len()))

	for _, fn := range b.functions {
		u32(fn.Offset)
		u32(fn.Size)
		u32(fn.ParamCount)
		u32(fn.NameID)
		u32(fn.FilenameID)
		u32(fn.SourceLine)
	}
	for _, s := range b.strings {
		u32(uint32(len(s)))
		out.WriteString(s)
	}
	for _, s := range b.filenames {
		u32(uint32(len(s)))
		out.WriteString(s)
	}
	out.Write(b.code.Bytes())
	out.Write(b.epilogue)
	return out.Bytes()
}
