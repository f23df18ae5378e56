package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kernelci/logspec/internal/config"
	"github.com/kernelci/logspec/internal/logging"
	"github.com/kernelci/logspec/internal/parser"
	"github.com/kernelci/logspec/internal/report"
	lssignal "github.com/kernelci/logspec/internal/signal"
	"github.com/kernelci/logspec/internal/states"
)

var (
	// rootCtx holds the signal-cancellable context for the application
	rootCtx    context.Context
	rootCancel context.CancelFunc

	flagParserDefs string
	flagOutput     string
	flagJSONFull   bool
	flagStripANSI  bool
	flagConfig     string

	// cfg is loaded before any command runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "logspec [flags] <log> <parser-id>",
	Short: "Extract structured errors from kernel build, boot and test logs",
	Long: `logspec parses a CI log with a parser (a state machine defined in the parser
definitions file) and prints the checkpoints it reached and the errors it found
as JSON on stdout.`,
	Version:      parser.Version,
	Args:         cobra.ExactArgs(2),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rootCtx, rootCancel = lssignal.WithSignalCancel(context.Background())

		var err error
		cfg, err = config.LoadOptional(flagConfig)
		if err != nil {
			return err
		}
		output := outputMode(cmd)
		level, err := outputLevel(output)
		if err != nil {
			return err
		}
		logging.Init(os.Stderr, logging.Options{Level: level})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if rootCancel != nil {
			rootCancel()
		}
	},
	RunE: runParse,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetContext returns the root context that is cancelled on SIGINT/SIGTERM.
func GetContext() context.Context {
	if rootCtx == nil {
		return context.Background()
	}
	return rootCtx
}

// outputMode returns the --output flag, or the configured mode when the
// flag was not given.
func outputMode(cmd *cobra.Command) string {
	if cmd.Flags().Changed("output") || cfg == nil {
		return flagOutput
	}
	return cfg.Parser.GetOutput()
}

func outputLevel(output string) (slog.Level, error) {
	switch output {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "json":
		return slog.LevelWarn, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported output type: %s", output)
	}
}

// parserDefs returns the definitions file to load, or "" for the built-in
// definitions. The default file is optional; an explicit one is not.
func parserDefs(cmd *cobra.Command) string {
	if cmd.Flags().Changed("parser-defs") {
		return flagParserDefs
	}
	path := cfg.Parser.GetDefs()
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		logging.Debug("parser definitions not found, using built-in definitions", "path", path)
		return ""
	}
	return path
}

func stripANSI(cmd *cobra.Command) bool {
	if cmd.Flags().Changed("strip-ansi") {
		return flagStripANSI
	}
	return cfg.Parser.ShouldStripANSI()
}

func jsonFull(cmd *cobra.Command) bool {
	if cmd.Flags().Changed("json-full") {
		return flagJSONFull
	}
	return cfg.Parser.JSONFull
}

// parseFile loads parser id and runs it over the log at path.
func parseFile(cmd *cobra.Command, path, id string) (*parser.Result, error) {
	start, err := states.LoadParser(id, parserDefs(cmd))
	if err != nil {
		return nil, fmt.Errorf("failed to load parser %s: %w", id, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	text := string(data)
	if stripANSI(cmd) {
		text = parser.CleanLog(text)
	}
	logging.Debug("parsing log", "path", path, "parser", id, "bytes", len(text))
	return parser.Parse(text, start), nil
}

func runParse(cmd *cobra.Command, args []string) error {
	logPath, id := args[0], args[1]
	res, err := parseFile(cmd, logPath, id)
	if err != nil {
		return err
	}

	output := outputMode(cmd)
	if output != "json" {
		fmt.Fprintln(os.Stderr, report.Render(res, report.Options{
			Parser:  id,
			Verbose: output == "debug",
		}))
	}
	out, err := parser.Format(res, jsonFull(cmd))
	if err != nil {
		return fmt.Errorf("failed to format result: %w", err)
	}
	_, err = os.Stdout.Write(out)
	return err
}

func init() {
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.PersistentFlags().StringVarP(&flagParserDefs, "parser-defs", "d", "parser_defs.yaml", "parser definitions file")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "info", "output type: info, debug or json (JSON output only)")
	rootCmd.PersistentFlags().BoolVar(&flagJSONFull, "json-full", false, "include debug fields in the JSON output")
	rootCmd.PersistentFlags().BoolVar(&flagStripANSI, "strip-ansi", false, "remove terminal escape sequences from the log before parsing")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", config.DefaultPath, "configuration file")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(kcidbCmd)
	rootCmd.AddCommand(parsersCmd)
	rootCmd.AddCommand(configCmd)
}
