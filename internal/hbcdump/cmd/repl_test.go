package cmd

import (
	"bytes"
	"io"
	"strings"
	"syscall"
	"testing"

	"hbcdump/internal/analysis"
	"hbcdump/internal/disasm"
	"hbcdump/internal/hbc"
)

var testProfile = []byte(`{
	"version": 1,
	"page_size": 8,
	"trace": [
		{"functionId": 0, "offset": 0, "executionCount": 10},
		{"functionId": 1, "offset": 0, "executionCount": 5}
	]
}`)

// newTestSession builds a non-interactive session over the shared fixture
// module: function 0 "global" (14 bytes at virtual offset 0) and function 1
// "add" (6 bytes at virtual offset 14).
func newTestSession(t *testing.T, withProfile bool) (*session, *bytes.Buffer) {
	t.Helper()
	b := hbc.NewBuilder()
	b.AddString("hello")
	appJS := b.AddFilename("app.js")
	global := []byte{
		byte(disasm.OpLoadConstString), 0, 0, 0,
		byte(disasm.OpLoadConstUInt8), 1, 42,
		byte(disasm.OpCall), 2, 1, 0, 1,
		byte(disasm.OpRet), 2,
	}
	add := []byte{
		byte(disasm.OpAdd), 0, 1, 2,
		byte(disasm.OpRet), 0,
	}
	b.AddFunction("global", appJS, 1, 0, global)
	b.AddFunction("add", appJS, 10, 2, add)

	provider, err := hbc.Load(b.Bytes())
	if err != nil {
		t.Fatal(err)
	}

	d := disasm.New(provider)
	d.SetOptions(disasm.Pretty)

	var profileData []byte
	if withProfile {
		profileData = testProfile
	}
	out := &bytes.Buffer{}
	a, err := analysis.NewAnalyzer(out, provider, profileData, nil)
	if err != nil {
		t.Fatal(err)
	}

	return newSession(out, strings.NewReader(""), d, a, false), out
}

// runCommand executes one command line in a fresh session and returns its
// output.
func runCommand(t *testing.T, line string) string {
	t.Helper()
	s, out := newTestSession(t, true)
	s.dispatch(line)
	return out.String()
}

func TestDispatchEmptyLine(t *testing.T) {
	s, out := newTestSession(t, true)
	if s.dispatch("") {
		t.Error("empty line should not terminate the session")
	}
	if out.Len() != 0 {
		t.Errorf("empty line should produce no output, got %q", out.String())
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	got := runCommand(t, "bogus")
	if got != "Invalid command: bogus\n" {
		t.Errorf("output = %q", got)
	}
}

func TestArityFailurePrintsUsage(t *testing.T) {
	tests := []struct {
		name string
		line string
		cmd  string
	}{
		{"help with two args", "help a b", "help"},
		{"filename without arg", "filename", "filename"},
		{"string with two args", "string 1 2", "string"},
		{"alias reports canonical usage", "dis 1 2 3", "disassemble"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := runCommand(t, tt.line)
			if got != commandTable[tt.cmd].help {
				t.Errorf("output = %q, want usage of %q", got, tt.cmd)
			}
			if strings.HasSuffix(got, "\n\n") {
				t.Errorf("usage must not be followed by a blank line: %q", got)
			}
		})
	}
}

func TestParseIntFailure(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"string zz", "Error: cannot parse string_id as integer.\n"},
		{"function x", "Error: cannot parse func_id as integer.\n"},
		{"disassemble x", "Error: cannot parse func_id as integer.\n"},
		{"filename x", "Error: cannot parse filename_id as integer.\n"},
		{"at-virtual x", "Error: cannot parse virtualOffset as integer.\n"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got := runCommand(t, tt.line)
			if got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
			if strings.Contains(got, "USAGE") {
				t.Errorf("parse failure must not print usage text: %q", got)
			}
		})
	}
}

func TestParseIDAcceptsHexRadix(t *testing.T) {
	got := runCommand(t, "string 0x0")
	if !strings.Contains(got, `String 0: "hello"`) {
		t.Errorf("hex string id not accepted: %q", got)
	}
}

func TestAliasOutputsIdentical(t *testing.T) {
	pairs := [][2]string{
		{"function 1", "fun 1"},
		{"function -used", "fun -used"},
		{"instruction", "inst"},
		{"disassemble 1", "dis 1"},
		{"string 0", "str 0"},
		{"summary", "sum"},
		{"epilogue", "epi"},
		{"at-virtual 14", "at_virtual 14"},
		{"help", "h"},
	}
	for _, pair := range pairs {
		t.Run(pair[0], func(t *testing.T) {
			if canonical, alias := runCommand(t, pair[0]), runCommand(t, pair[1]); canonical != alias {
				t.Errorf("alias output differs:\ncanonical: %q\nalias:     %q", canonical, alias)
			}
		})
	}
}

func TestFlagPositionIndependence(t *testing.T) {
	before := runCommand(t, "disassemble -offsets 1")
	after := runCommand(t, "disassemble 1 -offsets")
	if before != after {
		t.Errorf("flag position changed output:\n%q\nvs\n%q", before, after)
	}
	if !strings.Contains(before, "0000000e") {
		t.Errorf("-offsets should add the virtual offset column:\n%s", before)
	}
}

func TestUsedFlagTakesPrecedence(t *testing.T) {
	plain := runCommand(t, "function -used")
	withArg := runCommand(t, "function -used 1")
	if plain != withArg {
		t.Errorf("-used with an extra argument should behave like -used alone:\n%q\nvs\n%q", plain, withArg)
	}
	if plain != "0\n1\n\n" {
		t.Errorf("used function IDs = %q", plain)
	}
}

func TestOptionMaskRestored(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"after success", "disassemble -offsets 1"},
		{"after whole module", "disassemble -offsets"},
		{"after parse failure", "disassemble -offsets zz"},
		{"after bad function id", "disassemble -offsets 999"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSession(t, true)
			baseline := s.disassembler.Options()
			s.dispatch(tt.line)
			if got := s.disassembler.Options(); got != baseline {
				t.Errorf("options = %v after %q, want baseline %v", got, tt.line, baseline)
			}
		})
	}
}

func TestDisassembleBadID(t *testing.T) {
	got := runCommand(t, "disassemble 999")
	want := "Error: no function with id: 999 exists.\n"
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestAtVirtual(t *testing.T) {
	got := runCommand(t, "at-virtual 14")
	if !strings.Contains(got, `"functionId": 1`) || !strings.Contains(got, `"name": "add"`) {
		t.Errorf("missing function metadata:\n%s", got)
	}

	invalid := runCommand(t, "at-virtual 9999")
	if invalid != "Virtual offset 9999 is invalid.\n\n" {
		t.Errorf("output = %q", invalid)
	}
	if strings.Contains(invalid, "functionId") {
		t.Errorf("invalid offset must not render metadata: %q", invalid)
	}
}

func TestQuitTerminates(t *testing.T) {
	s, out := newTestSession(t, true)
	if !s.dispatch("quit") {
		t.Error("quit should terminate the session")
	}
	if out.Len() != 0 {
		t.Errorf("quit should produce no output, got %q", out.String())
	}
}

func TestHelpListsCommands(t *testing.T) {
	got := runCommand(t, "help")
	if !strings.HasPrefix(got, topLevelHelpText) {
		t.Errorf("missing help preamble:\n%s", got)
	}

	listing := strings.TrimPrefix(got, topLevelHelpText)
	lines := strings.Split(strings.TrimSuffix(listing, "\n"), "\n")

	var want []string
	for _, c := range commands {
		if c.help != "" {
			want = append(want, c.name)
		}
	}
	if len(lines) != len(want) {
		t.Fatalf("help lists %d commands, want %d:\n%s", len(lines), len(want), got)
	}
	for i := 1; i < len(lines); i++ {
		if lines[i-1] >= lines[i] {
			t.Errorf("help listing not sorted: %q before %q", lines[i-1], lines[i])
		}
	}
	for _, name := range want {
		if strings.Count(listing, name+"\n") == 0 {
			t.Errorf("help listing missing %q:\n%s", name, got)
		}
	}
	if strings.Contains(listing, "quit") {
		t.Errorf("quit has no usage text and must not be listed:\n%s", got)
	}
}

func TestHelpLookup(t *testing.T) {
	if got := runCommand(t, "help summary"); got != commandTable["summary"].help {
		t.Errorf("help summary = %q", got)
	}

	// Help is keyed by canonical names: aliases, quit, and unknown names all
	// report as invalid commands.
	for _, name := range []string{"fun", "quit", "nosuchcommand"} {
		want := "Invalid command: " + name + "\n"
		if got := runCommand(t, "help "+name); got != want {
			t.Errorf("help %s = %q, want %q", name, got, want)
		}
	}
}

func TestCompletedCommandTrailingBlank(t *testing.T) {
	got := runCommand(t, "summary")
	if !strings.HasSuffix(got, "\n\n") {
		t.Errorf("completed command should end with a blank line: %q", got)
	}

	failed := runCommand(t, "string zz")
	if strings.HasSuffix(failed, "\n\n") {
		t.Errorf("failed command must not end with a blank line: %q", failed)
	}
}

func TestRunStartupCommands(t *testing.T) {
	s, out := newTestSession(t, true)
	s.run([]string{"string 0", "quit", "summary"})
	got := out.String()

	if !strings.Contains(got, `String 0: "hello"`) {
		t.Errorf("missing startup command output:\n%s", got)
	}
	if strings.Contains(got, "Bytecode module summary") {
		t.Errorf("commands after quit must not run:\n%s", got)
	}
	if strings.Contains(got, prompt) {
		t.Errorf("non-interactive run must not print the prompt:\n%s", got)
	}
}

func TestRunReadsInputLines(t *testing.T) {
	s, out := newTestSession(t, true)
	s.in = newLineReader(strings.NewReader("filename 0\nquit\n"))
	s.run(nil)

	if !strings.Contains(out.String(), "Filename 0: app.js") {
		t.Errorf("missing command output:\n%s", out.String())
	}
}

func TestRunStopsAtEOF(t *testing.T) {
	s, out := newTestSession(t, true)
	s.in = newLineReader(strings.NewReader("string 0"))
	s.run(nil)

	if !strings.Contains(out.String(), `String 0: "hello"`) {
		t.Errorf("unterminated final line should still execute:\n%s", out.String())
	}
}

func TestFunctionInfoWithoutArgs(t *testing.T) {
	got := runCommand(t, "function-info")
	if !strings.HasPrefix(got, "[") {
		t.Errorf("expected a JSON array: %q", got)
	}
	if strings.Count(got, `"functionId"`) != 2 {
		t.Errorf("expected two records:\n%s", got)
	}
}

func TestNoProfileDiagnostic(t *testing.T) {
	s, out := newTestSession(t, false)
	for _, line := range []string{"function", "instruction", "block", "io"} {
		out.Reset()
		s.dispatch(line)
		if !strings.Contains(out.String(), "Error: no profile data loaded, re-run with --profile-file.") {
			t.Errorf("%q output = %q", line, out.String())
		}
	}
}

func TestFindAndRemoveOne(t *testing.T) {
	tests := []struct {
		name      string
		tokens    []string
		needle    string
		want      []string
		wantFound bool
	}{
		{"needle first", []string{"-used", "3"}, "-used", []string{"3"}, true},
		{"needle last", []string{"3", "-used"}, "-used", []string{"3"}, true},
		{"absent", []string{"3"}, "-used", []string{"3"}, false},
		{"only removes one", []string{"-used", "-used"}, "-used", []string{"-used"}, true},
		{"empty", nil, "-used", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := findAndRemoveOne(tt.tokens, tt.needle)
			if found != tt.wantFound {
				t.Errorf("found = %v, want %v", found, tt.wantFound)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("tokens = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("tokens = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestLineReader(t *testing.T) {
	lr := newLineReader(strings.NewReader("one\ntwo"))

	if line, ok := lr.readLine(); !ok || line != "one" {
		t.Errorf("readLine() = %q, %v", line, ok)
	}
	if line, ok := lr.readLine(); !ok || line != "two" {
		t.Errorf("readLine() on unterminated final line = %q, %v", line, ok)
	}
	if line, ok := lr.readLine(); ok {
		t.Errorf("readLine() after EOF = %q, expected end of input", line)
	}
}

// scriptedRead is one scripted result from an interruptedReader.
type scriptedRead struct {
	data string
	err  error
}

// interruptedReader replays its scripted reads in order, then reports EOF.
type interruptedReader struct {
	reads []scriptedRead
}

func (r *interruptedReader) Read(p []byte) (int, error) {
	if len(r.reads) == 0 {
		return 0, io.EOF
	}
	next := r.reads[0]
	r.reads = r.reads[1:]
	n := copy(p, next.data)
	return n, next.err
}

func TestLineReaderRetriesInterruptedReads(t *testing.T) {
	lr := newLineReader(&interruptedReader{reads: []scriptedRead{
		{"str", syscall.EINTR},
		{"", syscall.EINTR},
		{"ing 0\nnext\n", nil},
	}})

	if line, ok := lr.readLine(); !ok || line != "string 0" {
		t.Errorf("readLine() across interrupted reads = %q, %v, want %q, true", line, ok, "string 0")
	}
	if line, ok := lr.readLine(); !ok || line != "next" {
		t.Errorf("readLine() = %q, %v, want %q, true", line, ok, "next")
	}
	if line, ok := lr.readLine(); ok {
		t.Errorf("readLine() after EOF = %q, expected end of input", line)
	}
}
