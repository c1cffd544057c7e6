package analysis

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// JSONEmitter is a streaming hierarchical JSON writer. It is the generic
// document sink used by the structured metadata dumps: callers open and close
// objects/arrays and emit keys and scalar values in order.
type JSONEmitter struct {
	w      io.Writer
	pretty bool
	stack  []jsonFrame
}

type jsonFrame struct {
	isArray    bool
	count      int
	pendingKey bool
}

// NewJSONEmitter returns an emitter writing to w. With pretty set, output is
// indented two spaces per nesting level.
func NewJSONEmitter(w io.Writer, pretty bool) *JSONEmitter {
	return &JSONEmitter{w: w, pretty: pretty}
}

func (e *JSONEmitter) top() *jsonFrame {
	if len(e.stack) == 0 {
		return nil
	}
	return &e.stack[len(e.stack)-1]
}

// beforeValue writes the separator preceding a value or key.
func (e *JSONEmitter) beforeValue() {
	t := e.top()
	if t == nil {
		return
	}
	if t.pendingKey {
		t.pendingKey = false
		return
	}
	if t.count > 0 {
		fmt.Fprint(e.w, ",")
	}
	if e.pretty {
		fmt.Fprintf(e.w, "\n%s", strings.Repeat("  ", len(e.stack)))
	}
}

// EmitKey writes an object key. The next emit call supplies its value.
func (e *JSONEmitter) EmitKey(key string) {
	e.beforeValue()
	fmt.Fprintf(e.w, "%s: ", strconv.Quote(key))
	t := e.top()
	t.count++
	t.pendingKey = true
}

func (e *JSONEmitter) value(literal string) {
	e.beforeValue()
	fmt.Fprint(e.w, literal)
	if t := e.top(); t != nil {
		t.count++
	}
}

// EmitString writes a string value.
func (e *JSONEmitter) EmitString(s string) { e.value(strconv.Quote(s)) }

// EmitUint writes an unsigned integer value.
func (e *JSONEmitter) EmitUint(v uint64) { e.value(strconv.FormatUint(v, 10)) }

// EmitInt writes a signed integer value.
func (e *JSONEmitter) EmitInt(v int64) { e.value(strconv.FormatInt(v, 10)) }

// EmitNumber writes a floating point value.
func (e *JSONEmitter) EmitNumber(v float64) { e.value(strconv.FormatFloat(v, 'g', -1, 64)) }

// EmitBool writes a boolean value.
func (e *JSONEmitter) EmitBool(v bool) { e.value(strconv.FormatBool(v)) }

// EmitNull writes a null value.
func (e *JSONEmitter) EmitNull() { e.value("null") }

// OpenObject starts a JSON object.
func (e *JSONEmitter) OpenObject() {
	e.beforeValue()
	if t := e.top(); t != nil {
		t.count++
	}
	fmt.Fprint(e.w, "{")
	e.stack = append(e.stack, jsonFrame{})
}

// CloseObject ends the innermost object.
func (e *JSONEmitter) CloseObject() { e.close("}") }

// OpenArray starts a JSON array.
func (e *JSONEmitter) OpenArray() {
	e.beforeValue()
	if t := e.top(); t != nil {
		t.count++
	}
	fmt.Fprint(e.w, "[")
	e.stack = append(e.stack, jsonFrame{isArray: true})
}

// CloseArray ends the innermost array.
func (e *JSONEmitter) CloseArray() { e.close("]") }

func (e *JSONEmitter) close(bracket string) {
	t := e.top()
	e.stack = e.stack[:len(e.stack)-1]
	if e.pretty && t != nil && t.count > 0 {
		fmt.Fprintf(e.w, "\n%s", strings.Repeat("  ", len(e.stack)))
	}
	fmt.Fprint(e.w, bracket)
}
