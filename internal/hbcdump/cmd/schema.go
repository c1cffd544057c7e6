package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
)

// FunctionInfo describes the record emitted by the function-info command.
type FunctionInfo struct {
	FunctionID           uint32 `json:"functionId" jsonschema:"title=Function ID,description=Index of the function in the module"`
	Name                 string `json:"name" jsonschema:"title=Function Name,description=Resolved name of the function"`
	ParamCount           uint32 `json:"paramCount" jsonschema:"title=Parameter Count,description=Number of declared parameters"`
	BytecodeSizeInBytes  uint32 `json:"bytecodeSizeInBytes" jsonschema:"title=Bytecode Size,description=Size of the function body in bytes"`
	VirtualOffset        uint32 `json:"virtualOffset" jsonschema:"title=Virtual Offset,description=Offset from the beginning of the instruction segment"`
	SourceFile           string `json:"sourceFile,omitempty" jsonschema:"title=Source File,description=File the function was compiled from"`
	SourceLine           uint32 `json:"sourceLine" jsonschema:"title=Source Line,description=Line the function was compiled from"`
	OriginalSource       string `json:"originalSource,omitempty" jsonschema:"title=Original Source,description=Pre-bundling file resolved through the source map"`
	OriginalLine         int    `json:"originalLine,omitempty" jsonschema:"title=Original Line,description=Pre-bundling line resolved through the source map"`
	OriginalColumn       int    `json:"originalColumn,omitempty" jsonschema:"title=Original Column,description=Pre-bundling column resolved through the source map"`
	ExecutedInstructions uint64 `json:"executedInstructions,omitempty" jsonschema:"title=Executed Instructions,description=Profile instruction count attributed to the function"`
}

var schemaCmd = &cobra.Command{
	Use:    "schema",
	Short:  "Generate JSON schema for function-info records",
	Long:   "Generate JSON schema for the records emitted by the function-info command",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		reflector := new(jsonschema.Reflector)
		bts, err := json.MarshalIndent(reflector.Reflect(&FunctionInfo{}), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal schema: %w", err)
		}
		fmt.Println(string(bts))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
