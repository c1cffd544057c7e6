package analysis

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestJSONEmitterCompact(t *testing.T) {
	var buf bytes.Buffer
	e := NewJSONEmitter(&buf, false)

	e.OpenObject()
	e.EmitKey("id")
	e.EmitUint(7)
	e.EmitKey("name")
	e.EmitString("global")
	e.EmitKey("values")
	e.OpenArray()
	e.EmitInt(-1)
	e.EmitBool(true)
	e.EmitNull()
	e.CloseArray()
	e.CloseObject()

	want := `{"id": 7,"name": "global","values": [-1,true,null]}`
	if buf.String() != want {
		t.Errorf("compact output = %q, want %q", buf.String(), want)
	}

	// Output must stay parseable by a standard decoder.
	var parsed map[string]any
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Errorf("output is not valid JSON: %v", err)
	}
}

func TestJSONEmitterPretty(t *testing.T) {
	var buf bytes.Buffer
	e := NewJSONEmitter(&buf, true)

	e.OpenObject()
	e.EmitKey("x")
	e.EmitUint(1)
	e.EmitKey("y")
	e.EmitNumber(2.5)
	e.CloseObject()

	want := "{\n  \"x\": 1,\n  \"y\": 2.5\n}"
	if buf.String() != want {
		t.Errorf("pretty output = %q, want %q", buf.String(), want)
	}
}

func TestJSONEmitterEmptyContainers(t *testing.T) {
	var buf bytes.Buffer
	e := NewJSONEmitter(&buf, true)
	e.OpenArray()
	e.CloseArray()
	if buf.String() != "[]" {
		t.Errorf("empty array = %q, want %q", buf.String(), "[]")
	}

	buf.Reset()
	e = NewJSONEmitter(&buf, true)
	e.OpenObject()
	e.CloseObject()
	if buf.String() != "{}" {
		t.Errorf("empty object = %q, want %q", buf.String(), "{}")
	}
}

func TestJSONEmitterNestedArrays(t *testing.T) {
	var buf bytes.Buffer
	e := NewJSONEmitter(&buf, false)
	e.OpenArray()
	e.OpenObject()
	e.EmitKey("a")
	e.EmitUint(1)
	e.CloseObject()
	e.OpenObject()
	e.EmitKey("a")
	e.EmitUint(2)
	e.CloseObject()
	e.CloseArray()

	want := `[{"a": 1},{"a": 2}]`
	if buf.String() != want {
		t.Errorf("nested output = %q, want %q", buf.String(), want)
	}
}
