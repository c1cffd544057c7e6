// Package disasm renders bytecode modules as text. Output is controlled by a
// composable Options bitmask; the zero value renders the legacy raw format.
package disasm

import (
	"fmt"
	"io"
	"strings"

	"hbcdump/internal/hbc"
)

// Options is a bitmask of independent disassembly output toggles.
type Options uint32

const (
	None                  Options = 0
	IncludeSource         Options = 1 << 0 // show source file and line per function
	IncludeFunctionIDs    Options = 1 << 1 // show function IDs in headers
	IncludeVirtualOffsets Options = 1 << 2 // show segment-relative offsets per instruction
	Pretty                Options = 1 << 3 // aligned mnemonics, symbolic operands
	Objdump               Options = 1 << 4 // objdump-style address and byte columns
)

// Disassembler renders whole-module or single-function disassembly for a
// loaded bytecode module.
type Disassembler struct {
	provider *hbc.Provider
	opts     Options
}

// New returns a Disassembler over p with default (raw) options.
func New(p *hbc.Provider) *Disassembler {
	return &Disassembler{provider: p}
}

// Options returns the current output options.
func (d *Disassembler) Options() Options { return d.opts }

// SetOptions replaces the current output options.
func (d *Disassembler) SetOptions(opts Options) { d.opts = opts }

// FunctionCount returns the number of functions in the module.
func (d *Disassembler) FunctionCount() uint32 { return d.provider.FunctionCount() }

// Disassemble renders the whole module to w.
func (d *Disassembler) Disassemble(w io.Writer) error {
	p := d.provider
	fmt.Fprintf(w, "Bytecode module: version %d, %d functions, %d strings, %d filenames, %d segment bytes\n\n",
		p.BytecodeVersion(), p.FunctionCount(), p.StringCount(), p.FilenameCount(), p.SegmentSize())
	for id := uint32(0); id < p.FunctionCount(); id++ {
		if err := d.DisassembleFunction(w, id); err != nil {
			return err
		}
	}
	return nil
}

// DisassembleFunction renders a single function to w.
func (d *Disassembler) DisassembleFunction(w io.Writer, id uint32) error {
	p := d.provider
	if id >= p.FunctionCount() {
		return fmt.Errorf("no function with id: %d exists", id)
	}
	fn := p.FunctionHeader(id)
	name := p.FunctionName(id)

	if d.opts&Objdump != 0 {
		fmt.Fprintf(w, "%08x <%s>:\n", fn.Offset, name)
	} else {
		fmt.Fprintf(w, "Function<%s>(%d params, %d bytes)", name, fn.ParamCount, fn.Size)
		if d.opts&IncludeFunctionIDs != 0 {
			fmt.Fprintf(w, ", function ID %d", id)
		}
		fmt.Fprint(w, ":")
		if d.opts&IncludeSource != 0 {
			if file, ok := p.Filename(fn.FilenameID); ok && fn.SourceLine != 0 {
				fmt.Fprintf(w, "  ; %s:%d", file, fn.SourceLine)
			}
		}
		fmt.Fprintln(w)
	}

	code := p.Bytecode(id)
	pc := 0
	for pc < len(code) {
		inst, err := Decode(code, pc)
		if err != nil {
			fmt.Fprintf(w, "  %04x: (invalid) %v\n", pc, err)
			break
		}
		d.writeInst(w, fn, code, pc, inst)
		pc += inst.Len
	}
	fmt.Fprintln(w)
	return nil
}

func (d *Disassembler) writeInst(w io.Writer, fn hbc.FunctionHeader, code []byte, pc int, inst Inst) {
	voff := fn.Offset + uint32(pc)

	switch {
	case d.opts&Objdump != 0:
		raw := make([]string, 0, inst.Len)
		for i := 0; i < inst.Len; i++ {
			raw = append(raw, fmt.Sprintf("%02x", code[pc+i]))
		}
		fmt.Fprintf(w, "  %6x:\t%-24s\t%s %s\n", voff, strings.Join(raw, " "), inst.Op, d.formatOperands(inst, pc, true))
	case d.opts&Pretty != 0:
		if d.opts&IncludeVirtualOffsets != 0 {
			fmt.Fprintf(w, "  %08x  %04x\t%-20s%s\n", voff, pc, inst.Op, d.formatOperands(inst, pc, true))
		} else {
			fmt.Fprintf(w, "  %04x\t%-20s%s\n", pc, inst.Op, d.formatOperands(inst, pc, true))
		}
	default: // raw
		if d.opts&IncludeVirtualOffsets != 0 {
			fmt.Fprintf(w, "  %08x  %04x: %s %s\n", voff, pc, inst.Op, d.formatOperands(inst, pc, false))
		} else {
			fmt.Fprintf(w, "  %04x: %s %s\n", pc, inst.Op, d.formatOperands(inst, pc, false))
		}
	}
}

// formatOperands renders operands either symbolically (registers, quoted
// strings, resolved jump targets) or as raw numbers for the legacy format.
func (d *Disassembler) formatOperands(inst Inst, pc int, symbolic bool) string {
	kinds := inst.Op.Operands()
	parts := make([]string, 0, len(kinds))
	for i, k := range kinds {
		v := inst.Operands[i]
		if !symbolic {
			parts = append(parts, fmt.Sprintf("%d", v))
			continue
		}
		switch k {
		case KindReg:
			parts = append(parts, fmt.Sprintf("r%d", v))
		case KindDouble:
			parts = append(parts, fmt.Sprintf("%g", operandDouble(v)))
		case KindStringID:
			if s, ok := d.provider.String(uint32(v)); ok {
				parts = append(parts, fmt.Sprintf("%d ; %q", v, s))
			} else {
				parts = append(parts, fmt.Sprintf("%d ; <bad string id>", v))
			}
		case KindFunctionID:
			if uint32(v) < d.provider.FunctionCount() {
				parts = append(parts, fmt.Sprintf("%d ; <%s>", v, d.provider.FunctionName(uint32(v))))
			} else {
				parts = append(parts, fmt.Sprintf("%d ; <bad function id>", v))
			}
		case KindAddr:
			parts = append(parts, fmt.Sprintf("%+d ; -> %04x", v, inst.Target(pc)))
		default:
			parts = append(parts, fmt.Sprintf("%d", v))
		}
	}
	return strings.Join(parts, ", ")
}
