package hbc

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

// buildTestModule assembles a two-function module used across the tests:
// function 0 "global" (14 bytes) and function 1 "add" (6 bytes).
func buildTestModule() *Builder {
	b := NewBuilder()
	b.AddString("hello")
	appJS := b.AddFilename("app.js")

	// LoadConstString r0, "hello"; LoadConstUInt8 r1, 42; Call r2, add, 1; Ret r2
	global := []byte{
		5, 0, 0, 0,
		2, 1, 42,
		13, 2, 1, 0, 1,
		17, 2,
	}
	// Add r0, r1, r2; Ret r0
	add := []byte{
		7, 0, 1, 2,
		17, 0,
	}
	b.AddFunction("global", appJS, 1, 0, global)
	b.AddFunction("add", appJS, 10, 2, add)
	b.SetGlobalCodeIndex(0)
	b.SetEpilogue([]byte("meta"))
	return b
}

func TestLoadRoundTrip(t *testing.T) {
	data := buildTestModule().Bytes()
	p, err := Load(data)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if p.FunctionCount() != 2 {
		t.Errorf("FunctionCount() = %d, want 2", p.FunctionCount())
	}
	if p.BytecodeVersion() != Version {
		t.Errorf("BytecodeVersion() = %d, want %d", p.BytecodeVersion(), Version)
	}
	if p.GlobalCodeIndex() != 0 {
		t.Errorf("GlobalCodeIndex() = %d, want 0", p.GlobalCodeIndex())
	}
	if p.SegmentSize() != 20 {
		t.Errorf("SegmentSize() = %d, want 20", p.SegmentSize())
	}

	fn := p.FunctionHeader(1)
	if fn.Offset != 14 || fn.Size != 6 || fn.ParamCount != 2 || fn.SourceLine != 10 {
		t.Errorf("FunctionHeader(1) = %+v", fn)
	}

	if name := p.FunctionName(0); name != "global" {
		t.Errorf("FunctionName(0) = %q, want %q", name, "global")
	}
	if s, ok := p.String(0); !ok || s != "hello" {
		t.Errorf("String(0) = %q, %v", s, ok)
	}
	if _, ok := p.String(99); ok {
		t.Error("String(99) should not exist")
	}
	if f, ok := p.Filename(0); !ok || f != "app.js" {
		t.Errorf("Filename(0) = %q, %v", f, ok)
	}

	code := p.Bytecode(1)
	if len(code) != 6 || code[0] != 7 {
		t.Errorf("Bytecode(1) = %v", code)
	}
	if !bytes.Equal(p.Epilogue(), []byte("meta")) {
		t.Errorf("Epilogue() = %q, want %q", p.Epilogue(), "meta")
	}
}

func TestLoadErrors(t *testing.T) {
	valid := buildTestModule().Bytes()

	corrupt := func(mutate func([]byte)) []byte {
		data := bytes.Clone(valid)
		mutate(data)
		return data
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr string
	}{
		{
			name:    "empty buffer",
			data:    nil,
			wantErr: "buffer too small",
		},
		{
			name:    "short header",
			data:    valid[:10],
			wantErr: "buffer too small",
		},
		{
			name: "bad magic",
			data: corrupt(func(d []byte) {
				binary.LittleEndian.PutUint32(d[0:], 0xDEADBEEF)
			}),
			wantErr: "bad magic",
		},
		{
			name: "unsupported version",
			data: corrupt(func(d []byte) {
				binary.LittleEndian.PutUint32(d[4:], 99)
			}),
			wantErr: "unsupported bytecode version",
		},
		{
			name:    "truncated function table",
			data:    valid[:headerSize+5],
			wantErr: "truncated module",
		},
		{
			name: "function overruns segment",
			data: corrupt(func(d []byte) {
				// function 0 size field
				binary.LittleEndian.PutUint32(d[headerSize+4:], 1<<20)
			}),
			wantErr: "overruns instruction segment",
		},
		{
			name: "global code index out of range",
			data: corrupt(func(d []byte) {
				binary.LittleEndian.PutUint32(d[20:], 7)
			}),
			wantErr: "global code index 7 out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.data)
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestFunctionNameFallback(t *testing.T) {
	b := NewBuilder()
	b.AddFunction("", 0, 0, 0, []byte{17, 0})
	p, err := Load(b.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if name := p.FunctionName(0); name != "function@0" {
		t.Errorf("FunctionName(0) = %q, want %q", name, "function@0")
	}
}

func TestVirtualOffsetToFunction(t *testing.T) {
	p, err := Load(buildTestModule().Bytes())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		off    uint32
		wantID uint32
		wantOK bool
	}{
		{0, 0, true},
		{13, 0, true},
		{14, 1, true},
		{19, 1, true},
		{20, 0, false},
		{1000, 0, false},
	}
	for _, tt := range tests {
		id, ok := p.VirtualOffsetToFunction(tt.off)
		if ok != tt.wantOK || (ok && id != tt.wantID) {
			t.Errorf("VirtualOffsetToFunction(%d) = %d, %v; want %d, %v",
				tt.off, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestStringInterning(t *testing.T) {
	b := NewBuilder()
	first := b.AddString("dup")
	second := b.AddString("dup")
	if first != second {
		t.Errorf("AddString interning: %d != %d", first, second)
	}
}
