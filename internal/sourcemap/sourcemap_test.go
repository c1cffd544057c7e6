package sourcemap

import (
	"strings"
	"testing"
)

func TestParseAndLookup(t *testing.T) {
	// Line 1 maps columns 0 and 4; line 2 switches to the second source and
	// inherits the carried source line state.
	data := []byte(`{
		"version": 3,
		"sources": ["a.js", "b.js"],
		"names": [],
		"mappings": "AAAA,IACA;ACAA"
	}`)

	sm, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		name   string
		line   int
		column int
		want   Position
		wantOK bool
	}{
		{"first segment", 1, 0, Position{"a.js", 1, 1}, true},
		{"column between segments", 1, 3, Position{"a.js", 1, 1}, true},
		{"second segment", 1, 4, Position{"a.js", 2, 1}, true},
		{"column past last segment", 1, 100, Position{"a.js", 2, 1}, true},
		{"second line second source", 2, 0, Position{"b.js", 2, 1}, true},
		{"line out of range", 3, 0, Position{}, false},
		{"zero line", 0, 0, Position{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := sm.Lookup(tt.line, tt.column)
			if ok != tt.wantOK {
				t.Fatalf("Lookup(%d, %d) ok = %v, want %v", tt.line, tt.column, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("Lookup(%d, %d) = %+v, want %+v", tt.line, tt.column, got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"not json", "{", "parse source map"},
		{"wrong version", `{"version": 2, "sources": [], "mappings": ""}`, "unsupported source map version"},
		{"invalid vlq character", `{"version": 3, "sources": ["a.js"], "mappings": "AA!A"}`, "invalid VLQ character"},
		{"two field segment", `{"version": 3, "sources": ["a.js"], "mappings": "AA"}`, "malformed mapping segment"},
		{"unterminated vlq", `{"version": 3, "sources": ["a.js"], "mappings": "g"}`, "unterminated VLQ"},
		{"source index out of range", `{"version": 3, "sources": [], "mappings": "AAAA"}`, "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEmptyMappings(t *testing.T) {
	sm, err := Parse([]byte(`{"version": 3, "sources": ["a.js"], "mappings": ""}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if _, ok := sm.Lookup(1, 0); ok {
		t.Error("Lookup on empty mappings should fail")
	}
}
