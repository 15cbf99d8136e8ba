package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"communitychat/pkg/logger"
)

// Shutdown stops the HTTP server, the retention schedule and closes the
// store, in that order.
func (a *App) Shutdown(ctx context.Context) error {
	logger.Info("shutdown_requested")
	a.ready.Store(false)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if a.srvFast != nil {
			if err := a.srvFast.Shutdown(); err != nil {
				logger.Error("shutdown_http_error", "error", err)
			}
		}
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("shutdown_http_timeout")
	}

	if a.retentionCancel != nil {
		a.retentionCancel()
	}
	if err := a.store.Close(); err != nil {
		logger.Error("shutdown_store_close_error", "error", err)
		return err
	}
	logger.Info("shutdown_complete")
	return nil
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigc:
			logger.Info("signal_received", "signal", s.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigc)
	}()
	return ctx, cancel
}
