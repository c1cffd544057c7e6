package hbc

import (
	"bytes"
	"strings"
	"testing"
)

func TestSectionWalkerSections(t *testing.T) {
	data := buildTestModule().Bytes()
	p, err := Load(data)
	if err != nil {
		t.Fatal(err)
	}
	w := NewSectionWalker(p, uint64(len(data)))

	sections := w.Sections()
	wantNames := []string{
		"header",
		"function table",
		"string table",
		"filename table",
		"instruction segment",
		"epilogue",
	}
	if len(sections) != len(wantNames) {
		t.Fatalf("Sections() returned %d sections, want %d", len(sections), len(wantNames))
	}

	pos := uint64(0)
	for i, s := range sections {
		if s.Name != wantNames[i] {
			t.Errorf("section %d name = %q, want %q", i, s.Name, wantNames[i])
		}
		if s.Start != pos {
			t.Errorf("section %q start = %d, want %d (sections must be contiguous)", s.Name, s.Start, pos)
		}
		pos = s.End
	}
	if pos != uint64(len(data)) {
		t.Errorf("sections end at %d, file is %d bytes", pos, len(data))
	}
}

func TestPrintSectionRanges(t *testing.T) {
	data := buildTestModule().Bytes()
	p, err := Load(data)
	if err != nil {
		t.Fatal(err)
	}
	w := NewSectionWalker(p, uint64(len(data)))

	var plain bytes.Buffer
	w.PrintSectionRanges(&plain, false)
	if !strings.Contains(plain.String(), "header") ||
		!strings.Contains(plain.String(), "[0, 28) 28 bytes") {
		t.Errorf("plain output missing header range:\n%s", plain.String())
	}

	var human bytes.Buffer
	w.PrintSectionRanges(&human, true)
	if !strings.Contains(human.String(), "[0x0, 0x1c) 0x1c bytes") {
		t.Errorf("humanized output missing hex header range:\n%s", human.String())
	}
}
