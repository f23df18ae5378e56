package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kernelci/logspec/internal/kcidb"
	"github.com/kernelci/logspec/internal/logging"
	lssignal "github.com/kernelci/logspec/internal/signal"
)

var (
	flagKcidbDB          string
	flagKcidbPassword    string
	flagKcidbDriver      string
	flagKcidbType        string
	flagKcidbDateFrom    string
	flagKcidbDateUntil   string
	flagKcidbConcurrency int
	flagKcidbMetricsAddr string
	flagKcidbSchedule    string
)

var kcidbCmd = &cobra.Command{
	Use:   "kcidb",
	Short: "Generate KCIDB issues and incidents from failed results",
	Long: `Query a KCIDB database for failed builds or tests in a date range, parse
their logs and print a KCIDB submission with the new issues and the incidents
linking each result to an issue. Nothing is printed when there is nothing to
submit.`,
	Example: `  logspec kcidb --db "dbname=kcidb host=db" --password secret \
      --type boot_test --date-from 2024-08-18`,
	Args: cobra.NoArgs,
	RunE: runKcidb,
}

// stringFlag returns the flag value, or fallback when the flag was not
// given.
func stringFlag(cmd *cobra.Command, name, value, fallback string) string {
	if cmd.Flags().Changed(name) || fallback == "" {
		return value
	}
	return fallback
}

func runKcidb(cmd *cobra.Command, args []string) error {
	ctx := GetContext()
	if _, err := kcidb.LookupObjectType(flagKcidbType); err != nil {
		return fmt.Errorf("%w (valid types: %s)", err, strings.Join(kcidb.ObjectTypeNames(), ", "))
	}
	if flagKcidbDateFrom == "" && flagKcidbDateUntil == "" {
		return kcidb.ErrNoDateRange
	}

	kc := cfg.Kcidb
	driver := stringFlag(cmd, "db-driver", flagKcidbDriver, kc.GetDriver())
	dsn := stringFlag(cmd, "db", flagKcidbDB, kc.DB)
	if driver == "postgres" {
		dsn = kcidb.WithPassword(dsn, flagKcidbPassword)
	}
	concurrency := kc.GetConcurrency()
	if cmd.Flags().Changed("concurrency") {
		concurrency = flagKcidbConcurrency
	}

	store, err := kcidb.Open(ctx, driver, dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics := kcidb.NewMetrics()
	if addr := stringFlag(cmd, "metrics-addr", flagKcidbMetricsAddr, kc.MetricsAddr); addr != "" {
		stop := serveMetrics(addr, metrics)
		defer stop()
	}

	gen := kcidb.NewGenerator(store, kcidb.NewHTTPFetcher(kc.GetHTTPTimeout()), kcidb.Options{
		DefsPath:    parserDefs(cmd),
		Concurrency: concurrency,
		CacheTTL:    kc.GetCacheTTL(),
		Metrics:     metrics,
	})
	runOnce := func(ctx context.Context) error {
		sub, err := gen.Run(ctx, flagKcidbType, flagKcidbDateFrom, flagKcidbDateUntil)
		if err != nil || sub == nil {
			return err
		}
		return lssignal.Critical(func() error { return printSubmission(sub) })
	}

	schedule := stringFlag(cmd, "schedule", flagKcidbSchedule, kc.Schedule)
	if schedule == "" {
		return runOnce(ctx)
	}
	return kcidb.Schedule(ctx, schedule, func(ctx context.Context) {
		if err := runOnce(ctx); err != nil {
			logging.Error("generator run failed", "error", err)
		}
	})
}

func printSubmission(sub *kcidb.Submission) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(sub); err != nil {
		return fmt.Errorf("failed to write submission: %w", err)
	}
	return nil
}

// serveMetrics serves /metrics on addr in the background and returns a
// function that shuts the server down.
func serveMetrics(addr string, metrics *kcidb.Metrics) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logging.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("metrics server failed", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func init() {
	kcidbCmd.Flags().StringVar(&flagKcidbDB, "db", "", "database connection string")
	kcidbCmd.Flags().StringVar(&flagKcidbPassword, "password", "", "database password")
	kcidbCmd.Flags().StringVar(&flagKcidbDriver, "db-driver", "postgres", "database driver: postgres or sqlite3")
	kcidbCmd.Flags().StringVar(&flagKcidbType, "type", "", "type of objects to analyze: "+strings.Join(kcidb.ObjectTypeNames(), ", "))
	kcidbCmd.Flags().StringVar(&flagKcidbDateFrom, "date-from", "", "only results started at or after this date")
	kcidbCmd.Flags().StringVar(&flagKcidbDateUntil, "date-until", "", "only results started at or before this date")
	kcidbCmd.Flags().IntVar(&flagKcidbConcurrency, "concurrency", 8, "maximum number of logs fetched at once")
	kcidbCmd.Flags().StringVar(&flagKcidbMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	kcidbCmd.Flags().StringVar(&flagKcidbSchedule, "schedule", "", "cron expression; keep running and generate on this schedule")
	_ = kcidbCmd.MarkFlagRequired("type")
}
