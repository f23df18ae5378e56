package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagConfigWrite bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as a documented logspec.toml",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !flagConfigWrite {
			fmt.Fprint(os.Stdout, cfg.GenerateDocumentedConfig())
			return nil
		}
		if err := cfg.SaveDocumentedConfig(flagConfig); err != nil {
			return fmt.Errorf("failed to write %s: %w", flagConfig, err)
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", flagConfig)
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&flagConfigWrite, "write", false, "write the file given by --config instead of printing it")
}
