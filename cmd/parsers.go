package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kernelci/logspec/internal/parser"
	"github.com/kernelci/logspec/internal/states"
)

var parsersCmd = &cobra.Command{
	Use:   "parsers",
	Short: "List the parsers in the parser definitions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := parserDefs(cmd)
		var (
			defs *parser.Definitions
			err  error
		)
		if path == "" {
			defs, err = parser.DefaultDefinitions()
		} else {
			defs, err = parser.LoadDefinitionsFile(path)
		}
		if err != nil {
			return err
		}
		for _, id := range defs.Parsers() {
			start, err := states.Default().Load(defs, id)
			if err != nil {
				return fmt.Errorf("parser %s: %w", id, err)
			}
			fmt.Fprintf(os.Stdout, "%-24s starts at %s\n", id, start)
		}
		return nil
	},
}
