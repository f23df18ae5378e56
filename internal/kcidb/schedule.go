package kcidb

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/kernelci/logspec/internal/logging"
)

// Schedule runs job on the cron schedule spec until ctx is cancelled.
// Runs never overlap: a run still going when the next one is due makes
// that one skip.
func Schedule(ctx context.Context, spec string, job func(context.Context)) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() { job(ctx) }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	logging.Info("generator scheduled", "schedule", spec)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
