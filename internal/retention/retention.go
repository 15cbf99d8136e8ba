// Package retention removes soft-deleted messages once they are older than
// the configured period. Runs happen on a cron schedule or on demand.
package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"communitychat/pkg/config"
	"communitychat/pkg/logger"
	"communitychat/pkg/realtime"
	"communitychat/pkg/timeutil"
)

const lockTTL = 10 * time.Minute

// ErrRunning is returned by RunImmediate while another run is in progress.
var ErrRunning = errors.New("retention run already in progress")

// Store is the part of the real-time store retention needs.
type Store interface {
	Get(ctx context.Context, path string) (realtime.Snapshot, error)
	Remove(ctx context.Context, path string) error
}

// Manager owns the purge schedule for one collection.
type Manager struct {
	cfg   config.RetentionConfig
	store Store
	path  string
	clock timeutil.Clock

	mu      sync.Mutex
	running bool
}

// New returns a Manager purging the collection at path.
func New(cfg config.RetentionConfig, store Store, path string, clock timeutil.Clock) *Manager {
	if clock == nil {
		clock = timeutil.System
	}
	return &Manager{cfg: cfg, store: store, path: path, clock: clock}
}

// Start launches the cron loop when retention is enabled. The returned
// cancel func stops it.
func (m *Manager) Start(ctx context.Context) (context.CancelFunc, error) {
	if !m.cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}
	if !gronx.New().IsValid(m.cfg.Cron) {
		return nil, fmt.Errorf("invalid retention cron %q", m.cfg.Cron)
	}
	ctx2, cancel := context.WithCancel(ctx)
	logger.Info("retention_enabled", "cron", m.cfg.Cron, "period", m.cfg.Period.String(), "dry_run", m.cfg.DryRun)
	go m.scheduleLoop(ctx2)
	return cancel, nil
}

// RunImmediate runs one purge now.
func (m *Manager) RunImmediate(ctx context.Context) (Report, error) {
	if !m.begin() {
		return Report{}, ErrRunning
	}
	defer m.end()
	return m.runOnce(ctx)
}

func (m *Manager) scheduleLoop(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(m.cfg.Cron, m.clock.Now(), false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", m.cfg.Cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := next.Sub(m.clock.Now())
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
			m.runJob(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) runJob(ctx context.Context) {
	if !m.begin() {
		return
	}
	defer m.end()
	if _, err := m.runOnce(ctx); err != nil {
		logger.Error("retention_run_error", "error", err)
	}
}

func (m *Manager) begin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return false
	}
	m.running = true
	return true
}

func (m *Manager) end() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}
