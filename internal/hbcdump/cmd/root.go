package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	pathpkg "path/filepath"
	"runtime/pprof"
	"strings"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"hbcdump/internal/analysis"
	"hbcdump/internal/disasm"
	"hbcdump/internal/hbc"
	"hbcdump/internal/hbcdump/log"
	"hbcdump/internal/sourcemap"
)

func init() {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")

	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().String("out", "", "Write output to file instead of stdout")
	rootCmd.Flags().StringP("commands", "c", "", "Commands to run, separated by semicolons")
	rootCmd.Flags().String("mode", "", "Run a canned report batch and exit (stats, io, all)")
	rootCmd.Flags().String("profile-file", "", "Basic block profile trace file")
	rootCmd.Flags().String("source-map", "", "Source map file for the bytecode module")
	rootCmd.Flags().Bool("raw-disassemble", false, "Disassemble with raw numeric operands")
	rootCmd.Flags().Bool("pretty-disassemble", true, "Disassemble with symbolic operands (default)")
	rootCmd.Flags().Bool("objdump-disassemble", false, "Disassemble in objdump friendly format")
	rootCmd.Flags().Bool("source-info", true, "Include source file and line in disassembly")
	rootCmd.Flags().Bool("function-ids", true, "Include function IDs in disassembly headers")
	rootCmd.Flags().Bool("show-section-ranges", false, "Print byte ranges of module sections and exit")
	rootCmd.Flags().BoolP("human", "u", false, "Print section ranges in hex (use with --show-section-ranges)")
	rootCmd.Flags().BoolP("browse", "b", false, "Open the interactive TUI browser")
	rootCmd.Flags().String("cpuprofile", "", "Write CPU profile to file")
	rootCmd.Flags().String("memprofile", "", "Write memory profile to file")
}

// reportModes maps each --mode name to the command batch it runs. Every
// command goes through the same dispatcher as interactive input.
var reportModes = map[string][]string{
	"stats": {"summary", "function", "instruction", "block"},
	"io":    {"summary", "io"},
	"all":   {"summary", "function", "instruction", "block", "io", "function-info"},
}

var rootCmd = &cobra.Command{
	Use:   "hbcdump [file]",
	Short: "Inspect compiled bytecode modules",
	Long: `Hbcdump is an interactive inspection tool for compiled bytecode modules.
It disassembles functions, resolves strings and file names, and correlates
execution profiles against the module's code.`,
	Example: `
# Start an interactive session on a module
hbcdump /path/to/module.hbc

# Run commands non-interactively
hbcdump -c "summary;disassemble 0;quit" /path/to/module.hbc

# Correlate a basic block profile
hbcdump --profile-file trace.json --mode stats /path/to/module.hbc
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		debug, _ := cmd.Flags().GetBool("debug")
		log.Setup(debug)

		// Setup CPU profiling if requested
		cpuprofile, _ := cmd.Flags().GetString("cpuprofile")
		if cpuprofile != "" {
			f, err := os.Create(cpuprofile)
			if err != nil {
				return fmt.Errorf("could not create CPU profile: %v", err)
			}
			defer f.Close()
			if err := pprof.StartCPUProfile(f); err != nil {
				return fmt.Errorf("could not start CPU profile: %v", err)
			}
			defer pprof.StopCPUProfile()
		}

		// Setup memory profiling if requested
		memprofile, _ := cmd.Flags().GetString("memprofile")
		if memprofile != "" {
			defer func() {
				f, err := os.Create(memprofile)
				if err != nil {
					fmt.Fprintf(os.Stderr, "could not create memory profile: %v\n", err)
					return
				}
				defer f.Close()
				if err := pprof.WriteHeapProfile(f); err != nil {
					fmt.Fprintf(os.Stderr, "could not write memory profile: %v\n", err)
				}
			}()
		}

		absPath, err := pathpkg.Abs(args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve path: %v", err)
		}
		data, err := os.ReadFile(absPath)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("file not found: %s", args[0])
			}
			return fmt.Errorf("cannot access file: %v", err)
		}

		provider, err := hbc.Load(data)
		if err != nil {
			return fmt.Errorf("failed to load bytecode module: %v", err)
		}
		slog.Debug("Module loaded", "file", absPath,
			"functions", provider.FunctionCount(), "strings", provider.StringCount())

		var profileData []byte
		if profileFile, _ := cmd.Flags().GetString("profile-file"); profileFile != "" {
			profileData, err = os.ReadFile(profileFile)
			if err != nil {
				return fmt.Errorf("failed to read profile file: %v", err)
			}
		}

		var sm *sourcemap.SourceMap
		if sourceMapFile, _ := cmd.Flags().GetString("source-map"); sourceMapFile != "" {
			smData, err := os.ReadFile(sourceMapFile)
			if err != nil {
				return fmt.Errorf("failed to read source map: %v", err)
			}
			if sm, err = sourcemap.Parse(smData); err != nil {
				return fmt.Errorf("failed to parse source map: %v", err)
			}
		}

		out := cmd.OutOrStdout()
		outPath, _ := cmd.Flags().GetString("out")
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("could not create output file: %v", err)
			}
			defer f.Close()
			out = f
		}

		if showRanges, _ := cmd.Flags().GetBool("show-section-ranges"); showRanges {
			human, _ := cmd.Flags().GetBool("human")
			walker := hbc.NewSectionWalker(provider, uint64(len(data)))
			walker.PrintSectionRanges(out, human)
			return nil
		}

		opts, err := disassemblyOptions(cmd)
		if err != nil {
			return err
		}
		disassembler := disasm.New(provider)
		disassembler.SetOptions(opts)

		analyzer, err := analysis.NewAnalyzer(out, provider, profileData, sm)
		if err != nil {
			return fmt.Errorf("failed to parse profile file: %v", err)
		}

		if browse, _ := cmd.Flags().GetBool("browse"); browse {
			program := tea.NewProgram(
				NewModel(absPath, provider, disassembler, analyzer),
				tea.WithAltScreen(),
				tea.WithContext(cmd.Context()),
			)
			if _, err := program.Run(); err != nil {
				slog.Error("TUI run error", "error", err)
				return fmt.Errorf("TUI error: %v", err)
			}
			return nil
		}

		if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
			batch, ok := reportModes[mode]
			if !ok {
				return fmt.Errorf("unknown mode: %s", mode)
			}
			s := newSession(out, strings.NewReader(""), disassembler, analyzer, false)
			s.run(batch)
			return nil
		}

		var startup []string
		if commands, _ := cmd.Flags().GetString("commands"); commands != "" {
			startup = strings.Split(commands, ";")
		}

		interactive := outPath == "" &&
			term.IsTerminal(os.Stdin.Fd()) && term.IsTerminal(os.Stdout.Fd())
		s := newSession(out, cmd.InOrStdin(), disassembler, analyzer, interactive)
		s.run(startup)
		return nil
	},
}

// disassemblyOptions builds the baseline option mask from the root flags.
// Source info and function IDs are part of the baseline unless disabled;
// the three format flags are mutually exclusive and pretty is the default.
func disassemblyOptions(cmd *cobra.Command) (disasm.Options, error) {
	raw, _ := cmd.Flags().GetBool("raw-disassemble")
	objdump, _ := cmd.Flags().GetBool("objdump-disassemble")
	pretty, _ := cmd.Flags().GetBool("pretty-disassemble")
	prettyChanged := cmd.Flags().Changed("pretty-disassemble")

	set := 0
	if raw {
		set++
	}
	if objdump {
		set++
	}
	if prettyChanged && pretty {
		set++
	}
	if set > 1 {
		return disasm.None, fmt.Errorf("at most one of --raw-disassemble, --pretty-disassemble, --objdump-disassemble may be given")
	}

	opts := disasm.Pretty
	switch {
	case raw:
		opts = disasm.None
	case objdump:
		opts = disasm.Objdump
	case prettyChanged && !pretty:
		opts = disasm.None
	}
	if sourceInfo, _ := cmd.Flags().GetBool("source-info"); sourceInfo {
		opts |= disasm.IncludeSource
	}
	if functionIDs, _ := cmd.Flags().GetBool("function-ids"); functionIDs {
		opts |= disasm.IncludeFunctionIDs
	}
	return opts, nil
}

// scriptedInvocation reports whether the argument list requests a scripted
// run whose output must stay byte stable. Both the separated and the
// equals-joined spellings of the relevant flags count.
func scriptedInvocation(args []string) bool {
	for _, arg := range args {
		switch {
		case arg == "-c" || arg == "--commands" || arg == "--mode" || arg == "--out":
			return true
		case strings.HasPrefix(arg, "-c=") || strings.HasPrefix(arg, "--commands=") ||
			strings.HasPrefix(arg, "--mode=") || strings.HasPrefix(arg, "--out="):
			return true
		}
	}
	return false
}

func Execute() {
	// Bypass fang's markdown rendering for scripted invocations and when
	// output is being piped, so command output stays byte stable.
	plain := scriptedInvocation(os.Args[1:]) || !term.IsTerminal(os.Stdout.Fd())

	if plain {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
