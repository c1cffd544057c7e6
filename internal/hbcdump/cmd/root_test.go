package cmd

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"hbcdump/internal/disasm"
)

// newFormatFlagCommand registers the disassembly flags with their root
// defaults on a fresh command, so each test starts from a clean flag set.
func newFormatFlagCommand(t *testing.T) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{}
	cmd.Flags().Bool("raw-disassemble", false, "")
	cmd.Flags().Bool("pretty-disassemble", true, "")
	cmd.Flags().Bool("objdump-disassemble", false, "")
	cmd.Flags().Bool("source-info", true, "")
	cmd.Flags().Bool("function-ids", true, "")
	return cmd
}

func TestDisassemblyOptionsDefaultBaseline(t *testing.T) {
	opts, err := disassemblyOptions(newFormatFlagCommand(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := disasm.Pretty | disasm.IncludeSource | disasm.IncludeFunctionIDs
	if opts != want {
		t.Errorf("default baseline = %b, want %b", opts, want)
	}
}

func TestDisassemblyOptionsFormatSelectors(t *testing.T) {
	base := disasm.IncludeSource | disasm.IncludeFunctionIDs
	tests := []struct {
		name string
		set  map[string]string
		want disasm.Options
	}{
		{"raw", map[string]string{"raw-disassemble": "true"}, disasm.None | base},
		{"objdump", map[string]string{"objdump-disassemble": "true"}, disasm.Objdump | base},
		{"pretty explicit", map[string]string{"pretty-disassemble": "true"}, disasm.Pretty | base},
		{"pretty disabled", map[string]string{"pretty-disassemble": "false"}, disasm.None | base},
		{"no source info", map[string]string{"source-info": "false"}, disasm.Pretty | disasm.IncludeFunctionIDs},
		{"no function ids", map[string]string{"function-ids": "false"}, disasm.Pretty | disasm.IncludeSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newFormatFlagCommand(t)
			for name, value := range tt.set {
				if err := cmd.Flags().Set(name, value); err != nil {
					t.Fatalf("set %s: %v", name, err)
				}
			}
			opts, err := disassemblyOptions(cmd)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if opts != tt.want {
				t.Errorf("options = %b, want %b", opts, tt.want)
			}
		})
	}
}

func TestDisassemblyOptionsMutuallyExclusive(t *testing.T) {
	tests := []struct {
		name string
		set  []string
	}{
		{"raw and objdump", []string{"raw-disassemble", "objdump-disassemble"}},
		{"raw and pretty", []string{"raw-disassemble", "pretty-disassemble"}},
		{"objdump and pretty", []string{"objdump-disassemble", "pretty-disassemble"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newFormatFlagCommand(t)
			for _, name := range tt.set {
				if err := cmd.Flags().Set(name, "true"); err != nil {
					t.Fatalf("set %s: %v", name, err)
				}
			}
			_, err := disassemblyOptions(cmd)
			if err == nil {
				t.Fatal("expected mutual-exclusion error, got nil")
			}
			if !strings.Contains(err.Error(), "at most one") {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestScriptedInvocation(t *testing.T) {
	tests := []struct {
		args []string
		want bool
	}{
		{[]string{"module.hbc"}, false},
		{[]string{"-c", "summary;quit", "module.hbc"}, true},
		{[]string{"-c=summary;quit", "module.hbc"}, true},
		{[]string{"--commands", "summary", "module.hbc"}, true},
		{[]string{"--commands=summary;quit", "module.hbc"}, true},
		{[]string{"--out", "dump.txt", "module.hbc"}, true},
		{[]string{"--out=dump.txt", "module.hbc"}, true},
		{[]string{"--mode", "stats", "module.hbc"}, true},
		{[]string{"--mode=stats", "module.hbc"}, true},
		{[]string{"--outfile", "module.hbc"}, false},
		{[]string{"-b", "module.hbc"}, false},
	}
	for _, tt := range tests {
		if got := scriptedInvocation(tt.args); got != tt.want {
			t.Errorf("scriptedInvocation(%v) = %v, want %v", tt.args, got, tt.want)
		}
	}
}
