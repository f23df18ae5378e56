package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/kernelci/logspec/internal/logging"
	"github.com/kernelci/logspec/internal/report"
)

// watchDebounce coalesces the bursts of events produced by a single write.
const watchDebounce = 200 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch <log> <parser-id>",
	Short: "Re-parse a log every time it changes",
	Long: `Parse a log and parse it again whenever it is written to, printing a summary
after each run. Useful to follow a boot or test log while it is being captured.`,
	Args: cobra.ExactArgs(2),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := GetContext()
	logPath, id := args[0], args[1]
	abs, err := filepath.Abs(logPath)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", logPath, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	// Watch the directory: editors and log collectors often replace the
	// file instead of writing to it.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	render := func() {
		res, err := parseFile(cmd, abs, id)
		if err != nil {
			logging.Warn("parse failed", "path", abs, "error", err)
			return
		}
		fmt.Fprintf(os.Stdout, "%s\n%s\n", time.Now().Format(time.TimeOnly), report.Render(res, report.Options{Parser: id}))
	}
	render()

	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			timer.Reset(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn("watch error", "error", err)
		case <-timer.C:
			render()
		}
	}
}
