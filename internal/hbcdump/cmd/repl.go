package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"hbcdump/internal/analysis"
	"hbcdump/internal/disasm"
)

const prompt = "hbcdump> "

// session holds the state of one command-loop run: the loaded module's
// engines, the active output stream, and the input source. It is created
// once per process invocation and owns its buffers until loop termination.
type session struct {
	out          io.Writer
	in           *lineReader
	disassembler *disasm.Disassembler
	analyzer     *analysis.Analyzer
	interactive  bool
}

func newSession(out io.Writer, in io.Reader, d *disasm.Disassembler, a *analysis.Analyzer, interactive bool) *session {
	return &session{
		out:          out,
		in:           newLineReader(in),
		disassembler: d,
		analyzer:     a,
		interactive:  interactive,
	}
}

// command describes one REPL command: its canonical name, accepted aliases,
// optional flags stripped before arity checking, the set of legal argument
// counts (nil accepts any), its usage text, and its handler. The handler's
// second result reports whether the command completed, which controls the
// single trailing blank line.
type command struct {
	name    string
	aliases []string
	flags   []string
	arity   []int
	help    string
	run     func(s *session, args []string, flags map[string]bool) (terminate, completed bool)
}

var commandTable = map[string]*command{}

// run drives the session: startup commands first, then the interactive
// prompt loop. A terminate signal from a startup command skips the prompt
// entirely.
func (s *session) run(startupCommands []string) {
	for _, command := range startupCommands {
		if s.dispatch(command) {
			return
		}
	}
	for {
		if s.interactive {
			fmt.Fprint(s.out, prompt)
		}
		line, ok := s.in.readLine()
		if !ok {
			return
		}
		if s.dispatch(line) {
			return
		}
	}
}

// dispatch executes a single command line. It returns true to tell the
// caller to terminate the command loop.
func (s *session) dispatch(line string) bool {
	if line == "" {
		// Ignore empty input.
		return false
	}
	tokens := strings.Split(line, " ")
	cmd, ok := commandTable[tokens[0]]
	if !ok {
		s.printHelp(tokens[0])
		return false
	}

	args := tokens[1:]
	flagSet := make(map[string]bool)
	for _, f := range cmd.flags {
		var found bool
		if args, found = findAndRemoveOne(args, f); found {
			flagSet[f] = true
		}
	}
	if cmd.arity != nil && !slices.Contains(cmd.arity, len(args)) {
		s.printHelp(cmd.name)
		return false
	}

	terminate, completed := cmd.run(s, args, flagSet)
	if completed {
		fmt.Fprintln(s.out)
	}
	return terminate
}

// findAndRemoveOne removes the first exact occurrence of needle from tokens.
func findAndRemoveOne(tokens []string, needle string) ([]string, bool) {
	for i, t := range tokens {
		if t == needle {
			return append(tokens[:i:i], tokens[i+1:]...), true
		}
	}
	return tokens, false
}

// parseID parses a non-negative integer in the token's given radix
// (0x/0-prefix aware). On failure it prints the command's parse diagnostic
// and the caller must return without further output.
func (s *session) parseID(token, what string) (uint32, bool) {
	v, err := strconv.ParseUint(token, 0, 32)
	if err != nil {
		fmt.Fprintf(s.out, "Error: cannot parse %s as integer.\n", what)
		return 0, false
	}
	return uint32(v), true
}

// withOptions installs opts on d and returns the restore closure. Callers
// defer the closure so the baseline option mask is reinstated on every exit
// path, including validation failures mid-handler.
func withOptions(d *disasm.Disassembler, opts disasm.Options) func() {
	saved := d.Options()
	d.SetOptions(opts)
	return func() { d.SetOptions(saved) }
}

var commands []*command

// Assigned in init to break the initialization cycle between the help
// command's closure and printHelp, which iterates commands.
func init() {
	commands = []*command{
		{
			name:    "function",
			aliases: []string{"fun"},
			flags:   []string{"-used"},
			arity:   []int{0, 1},
			help: "'function': Compute the runtime instruction frequency " +
				"for each function and display in desceding order." +
				"Each function name is displayed together with its source code line number.\n\n" +
				"'function <FUNC_ID>': Dump basic block stats for function with id <FUNC_ID>.\n\n" +
				"'function -used': List all invoked function IDs, one per line.\n\n" +
				"USAGE: function [<FUNC_ID> | -used]\n" +
				"       fun [<FUNC_ID> | -used]\n",
			run: func(s *session, args []string, flags map[string]bool) (bool, bool) {
				switch {
				case flags["-used"]:
					s.analyzer.DumpUsedFunctionIDs()
				case len(args) == 0:
					s.analyzer.DumpFunctionStats()
				default:
					funcID, ok := s.parseID(args[0], "func_id")
					if !ok {
						return false, false
					}
					s.analyzer.DumpFunctionBasicBlockStat(funcID)
				}
				return false, true
			},
		},
		{
			name:    "instruction",
			aliases: []string{"inst"},
			arity:   []int{0},
			help: "Computes the runtime instruction frequency for each instruction" +
				"and displays it in descending order.\n\n" +
				"USAGE: instruction\n" +
				"       inst\n",
			run: func(s *session, args []string, flags map[string]bool) (bool, bool) {
				s.analyzer.DumpInstructionStats()
				return false, true
			},
		},
		{
			name:    "disassemble",
			aliases: []string{"dis"},
			flags:   []string{"-offsets"},
			arity:   []int{0, 1},
			help: "'disassemble': Display bytecode disassembled output of whole binary.\n" +
				"'disassemble <FUNC_ID>': Display bytecode disassembled output of function with id <FUNC_ID>.\n" +
				"Add the '-offsets' flag to show virtual offsets for all instructions.\n\n" +
				"USAGE: disassemble <FUNC_ID> [-offsets]\n" +
				"       dis <FUNC_ID> [-offsets]\n",
			run: func(s *session, args []string, flags map[string]bool) (bool, bool) {
				local := disasm.None
				if flags["-offsets"] {
					local = disasm.IncludeVirtualOffsets
				}
				restore := withOptions(s.disassembler, s.disassembler.Options()|local)
				defer restore()

				if len(args) == 0 {
					if err := s.disassembler.Disassemble(s.out); err != nil {
						fmt.Fprintf(s.out, "Error: %v\n", err)
						return false, false
					}
					return false, true
				}
				funcID, ok := s.parseID(args[0], "func_id")
				if !ok {
					return false, false
				}
				if funcID >= s.disassembler.FunctionCount() {
					fmt.Fprintf(s.out, "Error: no function with id: %d exists.\n", funcID)
					return false, false
				}
				if err := s.disassembler.DisassembleFunction(s.out, funcID); err != nil {
					fmt.Fprintf(s.out, "Error: %v\n", err)
					return false, false
				}
				return false, true
			},
		},
		{
			name:    "string",
			aliases: []string{"str"},
			arity:   []int{1},
			help: "Display string for ID\n\n" +
				"USAGE: string <STRING_ID>\n",
			run: func(s *session, args []string, flags map[string]bool) (bool, bool) {
				stringID, ok := s.parseID(args[0], "string_id")
				if !ok {
					return false, false
				}
				s.analyzer.DumpString(stringID)
				return false, true
			},
		},
		{
			name:  "filename",
			arity: []int{1},
			help: "Display file name for ID\n\n" +
				"USAGE: filename <FILENAME_ID>\n",
			run: func(s *session, args []string, flags map[string]bool) (bool, bool) {
				filenameID, ok := s.parseID(args[0], "filename_id")
				if !ok {
					return false, false
				}
				s.analyzer.DumpFileName(filenameID)
				return false, true
			},
		},
		{
			name:  "function-info",
			arity: []int{0, 1},
			help: "Display info about a specific function, or all functions\n\n" +
				"USAGE: function-info [<FUNC_ID>]\n" +
				"NOTE: Virtual offset is the offset from the beginning of the segment\n",
			run: func(s *session, args []string, flags map[string]bool) (bool, bool) {
				json := analysis.NewJSONEmitter(s.out, true)
				if len(args) == 0 {
					s.analyzer.DumpAllFunctionInfo(json)
					return false, true
				}
				funcID, ok := s.parseID(args[0], "func_id")
				if !ok {
					return false, false
				}
				s.analyzer.DumpFunctionInfo(funcID, json)
				return false, true
			},
		},
		{
			name:  "io",
			arity: []int{0},
			help: "Visualize function page I/O access working set" +
				"in basic block profile trace.\n\n" +
				"USAGE: io\n",
			run: func(s *session, args []string, flags map[string]bool) (bool, bool) {
				s.analyzer.DumpIO()
				return false, true
			},
		},
		{
			name:    "summary",
			aliases: []string{"sum"},
			arity:   []int{0},
			help: "Display overall summary information.\n\n" +
				"USAGE: summary\n",
			run: func(s *session, args []string, flags map[string]bool) (bool, bool) {
				s.analyzer.DumpSummary()
				return false, true
			},
		},
		{
			name:  "block",
			arity: []int{0},
			help: "Display top hot basic blocks in sorted order.\n\n" +
				"USAGE: block\n",
			run: func(s *session, args []string, flags map[string]bool) (bool, bool) {
				s.analyzer.DumpBasicBlockStats()
				return false, true
			},
		},
		{
			name:    "at-virtual",
			aliases: []string{"at_virtual"},
			arity:   []int{1},
			help: "Display information about the function at a given virtual offset.\n\n" +
				"USAGE: at-virtual <OFFSET>\n",
			run: func(s *session, args []string, flags map[string]bool) (bool, bool) {
				virtualOffset, ok := s.parseID(args[0], "virtualOffset")
				if !ok {
					return false, false
				}
				if funcID, found := s.analyzer.FunctionFromVirtualOffset(virtualOffset); found {
					json := analysis.NewJSONEmitter(s.out, true)
					s.analyzer.DumpFunctionInfo(funcID, json)
				} else {
					fmt.Fprintf(s.out, "Virtual offset %d is invalid.\n", virtualOffset)
				}
				return false, true
			},
		},
		{
			name:    "epilogue",
			aliases: []string{"epi"},
			arity:   []int{0},
			help: "Dump the epilogue.\n\n" +
				"USAGE: epilogue\n",
			run: func(s *session, args []string, flags map[string]bool) (bool, bool) {
				s.analyzer.DumpEpilogue()
				return false, true
			},
		},
		{
			name:    "help",
			aliases: []string{"h"},
			arity:   []int{0, 1},
			help: "Help instructions for hbcdump tool commands.\n\n" +
				"USAGE: help <COMMAND>\n" +
				"       h <COMMAND>\n",
			run: func(s *session, args []string, flags map[string]bool) (bool, bool) {
				if len(args) == 1 {
					s.printHelp(args[0])
				} else {
					s.printHelp("")
				}
				return false, false
			},
		},
		{
			name: "quit",
			run: func(s *session, args []string, flags map[string]bool) (bool, bool) {
				return true, false
			},
		},
	}
	for _, c := range commands {
		commandTable[c.name] = c
		for _, alias := range c.aliases {
			commandTable[alias] = c
		}
	}
}

const topLevelHelpText = "These commands are defined internally. Type `help' to see this list.\n" +
	"Type `help name' to find out more about the function `name'.\n\n"

// printHelp renders the usage text for one command, "Invalid command" for an
// unknown name, or the full command list for an empty name. The list is
// sorted by canonical name so scripted output stays deterministic.
func (s *session) printHelp(name string) {
	if name != "" {
		// Help is keyed by canonical names only; aliases and commands
		// without usage text report as invalid, matching lookup of an
		// unknown command.
		if c, ok := commandTable[name]; ok && c.name == name && c.help != "" {
			fmt.Fprint(s.out, c.help)
			return
		}
		fmt.Fprintf(s.out, "Invalid command: %s\n", name)
		return
	}

	fmt.Fprint(s.out, topLevelHelpText)
	names := make([]string, 0, len(commands))
	for _, c := range commands {
		if c.help != "" {
			names = append(names, c.name)
		}
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintln(s.out, n)
	}
}

// lineReader reads input lines, surviving interrupted reads. An EINTR during
// a blocking read is retried instead of being reported as end of input.
type lineReader struct {
	r *bufio.Reader
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReader(r)}
}

// readLine returns the next line without its terminator. The second result
// is false only on true end of input.
func (lr *lineReader) readLine() (string, bool) {
	var sb strings.Builder
	for {
		chunk, err := lr.r.ReadString('\n')
		sb.WriteString(chunk)
		if err == nil {
			return strings.TrimSuffix(sb.String(), "\n"), true
		}
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		if sb.Len() > 0 {
			// Unterminated final line.
			return strings.TrimSuffix(sb.String(), "\n"), true
		}
		return "", false
	}
}
