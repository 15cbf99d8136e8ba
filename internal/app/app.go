package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/valyala/fasthttp"

	"communitychat/internal/retention"
	"communitychat/pkg/config"
	"communitychat/pkg/logger"
	"communitychat/pkg/realtime"
	"communitychat/pkg/timeutil"
)

// App groups server state and components.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	store           *realtime.Store
	retention       *retention.Manager
	retentionCancel context.CancelFunc
	srvFast         *fasthttp.Server
	ready           atomic.Bool

	// listen opens the HTTP listener; replaced in tests
	listen func(addr string) (net.Listener, error)
	addrCh chan net.Addr
}

// New opens the configured store. It does not start the HTTP server or the
// retention schedule; Run does.
func New(ctx context.Context, eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	if eff.Config == nil {
		return nil, errors.New("effective config is nil")
	}
	cfg := eff.Config

	if dir := cfg.Retention.AuditDir; dir != "" {
		if err := logger.AttachAuditFileSink(dir); err != nil {
			return nil, fmt.Errorf("audit sink: %w", err)
		}
	}

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	logger.Info("store_opened", "backend", store.Name())

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		store:     store,
		retention: retention.New(cfg.Retention, store, cfg.Storage.Path, timeutil.System),
		listen: func(addr string) (net.Listener, error) {
			return net.Listen("tcp4", addr)
		},
		addrCh: make(chan net.Addr, 1),
	}
	return a, nil
}

func openStore(ctx context.Context, sc config.StorageConfig) (*realtime.Store, error) {
	switch sc.Backend {
	case config.BackendMemory:
		return realtime.NewMemory(timeutil.System), nil
	case config.BackendPebble:
		if err := os.MkdirAll(filepath.Dir(filepath.Clean(sc.DBPath)), 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		s, err := realtime.OpenPebble(sc.DBPath, &pebble.Options{}, timeutil.System)
		if err != nil {
			return nil, fmt.Errorf("failed to open pebble at %s: %w", sc.DBPath, err)
		}
		return s, nil
	case config.BackendRedis:
		s, err := realtime.OpenRedis(ctx, sc.RedisURL, timeutil.System)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", sc.Backend)
	}
}

// Run starts retention and the HTTP server and blocks until ctx is done or
// the server fails.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	cancel, err := a.retention.Start(ctx)
	if err != nil {
		return err
	}
	a.retentionCancel = cancel

	errCh, err := a.startHTTP()
	if err != nil {
		return err
	}
	a.ready.Store(true)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Addr blocks until the server is listening and returns its address.
func (a *App) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case addr := <-a.addrCh:
		a.addrCh <- addr
		return addr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
