// Package analysis answers profiling and metadata queries against a loaded
// bytecode module: instruction/function/basic-block hotness, string and
// filename lookups, structured function metadata, and page-level I/O
// visualization of a basic-block profile trace.
package analysis

import (
	"fmt"
	"io"
	"sort"

	"hbcdump/internal/disasm"
	"hbcdump/internal/hbc"
	"hbcdump/internal/logging"
	"hbcdump/internal/sourcemap"
)

// Analyzer aggregates profile statistics for one loaded module. The profile
// and source map are optional; commands that need the profile report a
// diagnostic when it is absent. All dump methods write to the stream the
// Analyzer was constructed with.
type Analyzer struct {
	w       io.Writer
	p       *hbc.Provider
	profile *Profile
	sm      *sourcemap.SourceMap

	// block decode cache, keyed by function ID and block offset
	blocks map[blockKey]blockInfo
}

type blockKey struct {
	fn  uint32
	off uint32
}

type blockInfo struct {
	insts int // instruction count, 0 if undecodable
	bytes int
	ok    bool
}

// NewAnalyzer builds an Analyzer over p. profileData, when non-nil, is parsed
// as a basic-block profiler log; sm may be nil.
func NewAnalyzer(w io.Writer, p *hbc.Provider, profileData []byte, sm *sourcemap.SourceMap) (*Analyzer, error) {
	a := &Analyzer{w: w, p: p, sm: sm, blocks: make(map[blockKey]blockInfo)}
	if profileData != nil {
		profile, err := ParseProfile(profileData)
		if err != nil {
			return nil, err
		}
		a.profile = profile
	}
	return a, nil
}

// HasProfile reports whether a profile trace is loaded.
func (a *Analyzer) HasProfile() bool { return a.profile != nil }

func (a *Analyzer) requireProfile() bool {
	if a.profile == nil {
		fmt.Fprintf(a.w, "Error: no profile data loaded, re-run with --profile-file.\n")
		return false
	}
	return true
}

// block returns decode info for the basic block at off in function fn,
// ending at the first terminator instruction.
func (a *Analyzer) block(fn, off uint32) blockInfo {
	key := blockKey{fn, off}
	if info, ok := a.blocks[key]; ok {
		return info
	}
	info := blockInfo{}
	if fn < a.p.FunctionCount() {
		code := a.p.Bytecode(fn)
		pc := int(off)
		for pc < len(code) {
			inst, err := disasm.Decode(code, pc)
			if err != nil {
				if logging.IsDebug() {
					lg := logging.NewLogger()
					lg.Debug("undecodable trace block", "function", fn, "offset", off, "err", err)
				}
				info = blockInfo{}
				break
			}
			info.insts++
			info.bytes += inst.Len
			info.ok = true
			if inst.Op.IsTerminator() {
				break
			}
			pc += inst.Len
		}
	}
	a.blocks[key] = info
	return info
}

// validEvents filters trace events down to those naming a real function.
func (a *Analyzer) validEvents() []TraceEvent {
	events := make([]TraceEvent, 0, len(a.profile.Trace))
	for _, ev := range a.profile.Trace {
		if ev.FunctionID >= a.p.FunctionCount() {
			if logging.IsDebug() {
				lg := logging.NewLogger()
				lg.Debug("trace references unknown function", "function", ev.FunctionID)
			}
			continue
		}
		events = append(events, ev)
	}
	return events
}

func (a *Analyzer) functionLabel(id uint32) string {
	fn := a.p.FunctionHeader(id)
	name := a.p.FunctionName(id)
	if file, ok := a.p.Filename(fn.FilenameID); ok && fn.SourceLine != 0 {
		return fmt.Sprintf("%s (%s:%d)", name, file, fn.SourceLine)
	}
	return name
}

// DumpFunctionStats renders the per-function aggregate runtime instruction
// frequency, descending.
func (a *Analyzer) DumpFunctionStats() {
	if !a.requireProfile() {
		return
	}
	counts := make(map[uint32]uint64)
	var total uint64
	for _, ev := range a.validEvents() {
		info := a.block(ev.FunctionID, ev.Offset)
		n := uint64(info.insts) * ev.ExecutionCount
		counts[ev.FunctionID] += n
		total += n
	}
	if total == 0 {
		fmt.Fprintf(a.w, "No executed instructions in profile trace.\n")
		return
	}

	ids := make([]uint32, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})

	fmt.Fprintf(a.w, "Runtime instruction frequency per function (descending):\n")
	fmt.Fprintf(a.w, "  %12s  %7s  %6s  %s\n", "INSTRUCTIONS", "PERCENT", "ID", "FUNCTION")
	for _, id := range ids {
		pct := float64(counts[id]) * 100 / float64(total)
		fmt.Fprintf(a.w, "  %12d  %6.2f%%  %6d  %s\n", counts[id], pct, id, a.functionLabel(id))
	}
}

// DumpUsedFunctionIDs renders every function ID present in the profile
// trace, ascending, one per line.
func (a *Analyzer) DumpUsedFunctionIDs() {
	if !a.requireProfile() {
		return
	}
	seen := make(map[uint32]bool)
	for _, ev := range a.validEvents() {
		seen[ev.FunctionID] = true
	}
	ids := make([]uint32, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fmt.Fprintf(a.w, "%d\n", id)
	}
}

// DumpFunctionBasicBlockStat renders per-block execution statistics for one
// function, descending by execution count.
func (a *Analyzer) DumpFunctionBasicBlockStat(funcID uint32) {
	if !a.requireProfile() {
		return
	}
	if funcID >= a.p.FunctionCount() {
		fmt.Fprintf(a.w, "Error: no function with id: %d exists.\n", funcID)
		return
	}

	counts := make(map[uint32]uint64)
	for _, ev := range a.validEvents() {
		if ev.FunctionID == funcID {
			counts[ev.Offset] += ev.ExecutionCount
		}
	}
	fmt.Fprintf(a.w, "Basic block stats for function %d <%s>:\n", funcID, a.p.FunctionName(funcID))
	if len(counts) == 0 {
		fmt.Fprintf(a.w, "  (no profile samples)\n")
		return
	}

	offsets := make([]uint32, 0, len(counts))
	for off := range counts {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool {
		if counts[offsets[i]] != counts[offsets[j]] {
			return counts[offsets[i]] > counts[offsets[j]]
		}
		return offsets[i] < offsets[j]
	})

	fmt.Fprintf(a.w, "  %6s  %6s  %12s\n", "OFFSET", "INSTS", "COUNT")
	for _, off := range offsets {
		info := a.block(funcID, off)
		fmt.Fprintf(a.w, "  %6x  %6d  %12d\n", off, info.insts, counts[off])
	}
}

// DumpInstructionStats renders the aggregate runtime frequency of each
// opcode, descending.
func (a *Analyzer) DumpInstructionStats() {
	if !a.requireProfile() {
		return
	}
	counts := make(map[disasm.Opcode]uint64)
	var total uint64
	for _, ev := range a.validEvents() {
		code := a.p.Bytecode(ev.FunctionID)
		pc := int(ev.Offset)
		for pc < len(code) {
			inst, err := disasm.Decode(code, pc)
			if err != nil {
				break
			}
			counts[inst.Op] += ev.ExecutionCount
			total += ev.ExecutionCount
			if inst.Op.IsTerminator() {
				break
			}
			pc += inst.Len
		}
	}
	if total == 0 {
		fmt.Fprintf(a.w, "No executed instructions in profile trace.\n")
		return
	}

	ops := make([]disasm.Opcode, 0, len(counts))
	for op := range counts {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool {
		if counts[ops[i]] != counts[ops[j]] {
			return counts[ops[i]] > counts[ops[j]]
		}
		return ops[i] < ops[j]
	})

	fmt.Fprintf(a.w, "Runtime instruction frequency (descending):\n")
	fmt.Fprintf(a.w, "  %12s  %7s  %s\n", "COUNT", "PERCENT", "INSTRUCTION")
	for _, op := range ops {
		pct := float64(counts[op]) * 100 / float64(total)
		fmt.Fprintf(a.w, "  %12d  %6.2f%%  %s\n", counts[op], pct, op)
	}
}

// DumpBasicBlockStats renders the hottest basic blocks across the whole
// module, descending.
func (a *Analyzer) DumpBasicBlockStats() {
	if !a.requireProfile() {
		return
	}
	counts := make(map[blockKey]uint64)
	for _, ev := range a.validEvents() {
		counts[blockKey{ev.FunctionID, ev.Offset}] += ev.ExecutionCount
	}
	if len(counts) == 0 {
		fmt.Fprintf(a.w, "No basic blocks in profile trace.\n")
		return
	}

	keys := make([]blockKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		if keys[i].fn != keys[j].fn {
			return keys[i].fn < keys[j].fn
		}
		return keys[i].off < keys[j].off
	})

	fmt.Fprintf(a.w, "Hot basic blocks (descending):\n")
	fmt.Fprintf(a.w, "  %12s  %6s  %6s  %s\n", "COUNT", "FUNC", "OFFSET", "FUNCTION")
	for _, k := range keys {
		fmt.Fprintf(a.w, "  %12d  %6d  %6x  %s\n", counts[k], k.fn, k.off, a.p.FunctionName(k.fn))
	}
}

// DumpIO renders the page-level I/O working set touched by the profile
// trace: pages in first-touch order plus a map of the instruction segment.
func (a *Analyzer) DumpIO() {
	if !a.requireProfile() {
		return
	}
	pageSize := a.profile.PageSize
	pageCount := (a.p.SegmentSize() + pageSize - 1) / pageSize

	touched := make(map[uint32]bool)
	var order []uint32
	for _, ev := range a.validEvents() {
		voff := a.p.FunctionHeader(ev.FunctionID).Offset + ev.Offset
		page := voff / pageSize
		if !touched[page] {
			touched[page] = true
			order = append(order, page)
		}
	}

	fmt.Fprintf(a.w, "Page I/O working set (page size %d, %d pages in segment):\n", pageSize, pageCount)
	fmt.Fprintf(a.w, "  touched %d pages, first-touch order:", len(order))
	for _, page := range order {
		fmt.Fprintf(a.w, " %d", page)
	}
	fmt.Fprintln(a.w)

	// One cell per page: '#' touched, '.' untouched, 64 pages per row.
	for base := uint32(0); base < pageCount; base += 64 {
		fmt.Fprintf(a.w, "  %6d  ", base)
		for page := base; page < pageCount && page < base+64; page++ {
			if touched[page] {
				fmt.Fprint(a.w, "#")
			} else {
				fmt.Fprint(a.w, ".")
			}
		}
		fmt.Fprintln(a.w)
	}
}

// DumpSummary renders the overall module summary, with profile coverage when
// a trace is loaded.
func (a *Analyzer) DumpSummary() {
	a.WriteSummaryTo(a.w)
}

// WriteSummaryTo writes the summary to w instead of the session's output
// stream, for embedding in other surfaces.
func (a *Analyzer) WriteSummaryTo(w io.Writer) {
	p := a.p
	fmt.Fprintf(w, "Bytecode module summary:\n")
	fmt.Fprintf(w, "  version:          %d\n", p.BytecodeVersion())
	fmt.Fprintf(w, "  functions:        %d\n", p.FunctionCount())
	fmt.Fprintf(w, "  strings:          %d\n", p.StringCount())
	fmt.Fprintf(w, "  filenames:        %d\n", p.FilenameCount())
	fmt.Fprintf(w, "  global code index: %d\n", p.GlobalCodeIndex())
	fmt.Fprintf(w, "  segment size:     %d bytes\n", p.SegmentSize())
	fmt.Fprintf(w, "  epilogue:         %d bytes\n", len(p.Epilogue()))

	if a.profile == nil {
		return
	}
	seen := make(map[uint32]bool)
	var executed uint64
	for _, ev := range a.validEvents() {
		seen[ev.FunctionID] = true
		executed += uint64(a.block(ev.FunctionID, ev.Offset).insts) * ev.ExecutionCount
	}
	coverage := float64(0)
	if p.FunctionCount() > 0 {
		coverage = float64(len(seen)) * 100 / float64(p.FunctionCount())
	}
	fmt.Fprintf(w, "Profile summary:\n")
	fmt.Fprintf(w, "  trace events:       %d\n", len(a.profile.Trace))
	fmt.Fprintf(w, "  functions executed: %d of %d (%.2f%%)\n", len(seen), p.FunctionCount(), coverage)
	fmt.Fprintf(w, "  instructions run:   %d\n", executed)
}

// DumpString renders the string table entry at id.
func (a *Analyzer) DumpString(id uint32) {
	s, ok := a.p.String(id)
	if !ok {
		fmt.Fprintf(a.w, "Error: no string with id: %d exists.\n", id)
		return
	}
	fmt.Fprintf(a.w, "String %d: %q\n", id, s)
}

// DumpFileName renders the filename table entry at id.
func (a *Analyzer) DumpFileName(id uint32) {
	s, ok := a.p.Filename(id)
	if !ok {
		fmt.Fprintf(a.w, "Error: no filename with id: %d exists.\n", id)
		return
	}
	fmt.Fprintf(a.w, "Filename %d: %s\n", id, s)
}

// DumpEpilogue renders the module's trailing bytes as a hex dump.
func (a *Analyzer) DumpEpilogue() {
	data := a.p.Epilogue()
	if len(data) == 0 {
		fmt.Fprintf(a.w, "(empty epilogue)\n")
		return
	}
	fmt.Fprintf(a.w, "Epilogue (%d bytes):\n", len(data))
	for base := 0; base < len(data); base += 16 {
		fmt.Fprintf(a.w, "  %08x ", base)
		for i := base; i < len(data) && i < base+16; i++ {
			fmt.Fprintf(a.w, " %02x", data[i])
		}
		fmt.Fprintln(a.w)
	}
}

// FunctionFromVirtualOffset resolves a virtual offset to the containing
// function ID.
func (a *Analyzer) FunctionFromVirtualOffset(off uint32) (uint32, bool) {
	return a.p.VirtualOffsetToFunction(off)
}

// DumpFunctionInfo emits structured metadata for one function through json.
func (a *Analyzer) DumpFunctionInfo(funcID uint32, json *JSONEmitter) {
	if funcID >= a.p.FunctionCount() {
		fmt.Fprintf(a.w, "Error: no function with id: %d exists.\n", funcID)
		return
	}
	a.emitFunctionInfo(funcID, json)
	fmt.Fprintln(a.w)
}

// DumpAllFunctionInfo emits structured metadata for every function as a
// JSON array.
func (a *Analyzer) DumpAllFunctionInfo(json *JSONEmitter) {
	json.OpenArray()
	for id := uint32(0); id < a.p.FunctionCount(); id++ {
		a.emitFunctionInfo(id, json)
	}
	json.CloseArray()
	fmt.Fprintln(a.w)
}

func (a *Analyzer) emitFunctionInfo(funcID uint32, json *JSONEmitter) {
	fn := a.p.FunctionHeader(funcID)
	json.OpenObject()
	json.EmitKey("functionId")
	json.EmitUint(uint64(funcID))
	json.EmitKey("name")
	json.EmitString(a.p.FunctionName(funcID))
	json.EmitKey("paramCount")
	json.EmitUint(uint64(fn.ParamCount))
	json.EmitKey("bytecodeSizeInBytes")
	json.EmitUint(uint64(fn.Size))
	json.EmitKey("virtualOffset")
	json.EmitUint(uint64(fn.Offset))

	if file, ok := a.p.Filename(fn.FilenameID); ok {
		json.EmitKey("sourceFile")
		json.EmitString(file)
	}
	json.EmitKey("sourceLine")
	json.EmitUint(uint64(fn.SourceLine))

	if a.sm != nil && fn.SourceLine != 0 {
		if pos, ok := a.sm.Lookup(int(fn.SourceLine), 0); ok {
			json.EmitKey("originalSource")
			json.EmitString(pos.Source)
			json.EmitKey("originalLine")
			json.EmitInt(int64(pos.Line))
			json.EmitKey("originalColumn")
			json.EmitInt(int64(pos.Column))
		}
	}

	if a.profile != nil {
		var executed uint64
		for _, ev := range a.validEvents() {
			if ev.FunctionID == funcID {
				executed += uint64(a.block(funcID, ev.Offset).insts) * ev.ExecutionCount
			}
		}
		json.EmitKey("executedInstructions")
		json.EmitUint(executed)
	}
	json.CloseObject()
}
