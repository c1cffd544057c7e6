package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

func init() {
	// Register our custom disassembly style on package initialization
	_ = DisasmDark
}

// DisasmDark is a custom style for bytecode disassembly matching our color
// scheme: white mnemonics, teal registers, pink numbers, golden strings.
var DisasmDark = styles.Register(chroma.MustNewStyle("hbcdump-dark", chroma.StyleEntries{
	chroma.Text:           "#FFFFFF",    // Default text white
	chroma.Background:     "bg:#1e1e1e", // Dark background
	chroma.Comment:        "#EBC2ED",    // String and target annotations in lavender
	chroma.CommentPreproc: "#EBC2ED",

	// For NASM lexer mappings
	chroma.Keyword:       "#FFFFFF", // Mnemonics in white
	chroma.KeywordPseudo: "#FFFFFF",
	chroma.Name:          "#7C9C9D", // Registers (rN) in teal
	chroma.NameBuiltin:   "#7C9C9D",
	chroma.NameVariable:  "#7C9C9D",

	// Numbers: string IDs, immediates, jump targets
	chroma.LiteralNumber:        "#FF5F87",
	chroma.LiteralNumberHex:     "#FF5F87",
	chroma.LiteralNumberBin:     "#FF5F87",
	chroma.LiteralNumberOct:     "#FF5F87",
	chroma.LiteralNumberInteger: "#FF5F87",
	chroma.LiteralNumberFloat:   "#FF5F87",

	// Labels and symbols
	chroma.NameLabel:    "#FFD700", // Function headers in gold
	chroma.NameFunction: "#FFFFFF", // Mnemonics tokenized as functions stay white

	// Operators and punctuation
	chroma.Operator:    "#FFFFFF",
	chroma.Punctuation: "#FFFFFF",

	// Strings
	chroma.String: "#EACD53", // Quoted string operands in golden
}))
