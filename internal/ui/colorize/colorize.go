// Package colorize applies terminal syntax highlighting to bytecode
// disassembly. Highlighting is disabled entirely when HBCDUMP_NO_COLOR is
// set, so piped output stays plain.
package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// getBytecodeLexer returns a lexer suited to mnemonic-and-operand lines.
// The NASM lexer handles ';' comments and numeric literals well enough for
// our output format.
func getBytecodeLexer() chroma.Lexer {
	candidates := []string{"nasm", "gas", "armasm"}
	for _, name := range candidates {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// getDisasmStyle returns the disassembly style with fallbacks
func getDisasmStyle() *chroma.Style {
	// Try our custom style first, then fallbacks
	candidates := []string{"hbcdump-dark", "dracula", "monokai"}
	for _, name := range candidates {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	// Try high-color first, then fallback
	candidates := []string{"terminal16m", "terminal256"}
	for _, name := range candidates {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// ColorizeDisassembly applies syntax highlighting to a block of disassembly
// output. Function headers are highlighted separately from instruction
// lines so the block structure stays visible.
func ColorizeDisassembly(code string) (string, error) {
	if os.Getenv("HBCDUMP_NO_COLOR") != "" {
		return code, nil
	}

	var sb strings.Builder
	for i, line := range strings.Split(code, "\n") {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if strings.HasPrefix(line, "Function<") {
			sb.WriteString(fmt.Sprintf("\033[1;38;2;255;215;0m%s\033[0m", line))
			continue
		}
		sb.WriteString(ColorizeInstructionLine(line))
	}
	return sb.String(), nil
}

// ColorizeInstructionLine colorizes a single instruction line while
// preserving its column alignment.
func ColorizeInstructionLine(line string) string {
	if os.Getenv("HBCDUMP_NO_COLOR") != "" {
		return line
	}

	// Lines can carry a leading virtual offset column ("00000010: ...").
	// Keep the offset gray and colorize the rest.
	trimmed := strings.TrimLeft(line, " ")
	if offset, rest, ok := splitOffsetColumn(trimmed); ok {
		indent := line[:len(line)-len(trimmed)]
		offsetColored := fmt.Sprintf("\033[38;2;79;79;79m%s\033[0m", offset)
		return indent + offsetColored + colorizeFullLine(rest)
	}
	indent := line[:len(line)-len(trimmed)]
	return indent + colorizeFullLine(trimmed)
}

// splitOffsetColumn splits "00000010: rest" into its offset prefix and the
// remainder. ok is false when the line has no offset column.
func splitOffsetColumn(line string) (offset, rest string, ok bool) {
	colon := strings.Index(line, ":")
	if colon <= 0 {
		return "", "", false
	}
	for i := range colon {
		if !isHexChar(line[i]) {
			return "", "", false
		}
	}
	return line[:colon+1], line[colon+1:], true
}

// isHexChar checks if a character is a hexadecimal digit
func isHexChar(ch byte) bool {
	return (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

// colorizeFullLine uses Chroma to colorize one mnemonic-and-operand line
func colorizeFullLine(line string) string {
	if os.Getenv("HBCDUMP_NO_COLOR") != "" {
		return line
	}

	lexer := getBytecodeLexer()
	if lexer == nil {
		return line
	}

	// Make sure our custom style is registered
	_ = DisasmDark

	style := getDisasmStyle()
	formatter := getTerminalFormatter()

	iterator, err := lexer.Tokenise(nil, line)
	if err != nil {
		return line
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return line
	}
	return buf.String()
}

// StripANSI removes ANSI escape codes from s.
func StripANSI(s string) string {
	var result strings.Builder
	inEscape := false
	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
		} else if inEscape {
			if r == 'm' {
				inEscape = false
			}
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
