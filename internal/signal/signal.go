// Package signal cancels the command context on SIGINT or SIGTERM.
// Cancellation is held back while a critical section runs, so that a
// submission being written to stdout is never cut in half.
package signal

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/kernelci/logspec/internal/logging"
)

// guard tracks critical sections and a cancellation deferred by them.
type guard struct {
	mu      sync.Mutex
	depth   int
	pending context.CancelFunc
}

var global guard

// deliver cancels now, or once the current critical sections end.
func (g *guard) deliver(cancel context.CancelFunc) {
	g.mu.Lock()
	if g.depth > 0 {
		g.pending = cancel
		g.mu.Unlock()
		logging.Info("signal received during critical section, deferring cancellation")
		return
	}
	g.mu.Unlock()
	cancel()
}

func (g *guard) enter() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.depth++
}

func (g *guard) leave() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.depth > 0 {
		g.depth--
	}
	if g.depth == 0 && g.pending != nil {
		g.pending()
		g.pending = nil
	}
}

// WithSignalCancel returns a context that is cancelled when SIGINT or
// SIGTERM is received. The returned cancel function releases the signal
// handler.
func WithSignalCancel(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logging.Info("received signal, shutting down", "signal", sig.String())
			global.deliver(cancel)
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// BlockSignals starts a critical section. Calls nest; each must be paired
// with UnblockSignals.
func BlockSignals() {
	global.enter()
}

// UnblockSignals ends a critical section. A signal received while blocked
// cancels its context now.
func UnblockSignals() {
	global.leave()
}

// Critical runs fn with signals blocked.
func Critical(fn func() error) error {
	BlockSignals()
	defer UnblockSignals()
	return fn()
}
