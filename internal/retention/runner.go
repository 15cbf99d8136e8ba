package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"communitychat/pkg/feed"
	"communitychat/pkg/logger"
	"communitychat/pkg/metrics"
	"communitychat/pkg/models"
	"communitychat/pkg/realtime"
	"communitychat/pkg/timeutil"
)

// Report summarises one retention run.
type Report struct {
	RunID    string `json:"run_id"`
	Scanned  int    `json:"scanned"`
	Eligible int    `json:"eligible"`
	Purged   int    `json:"purged"`
	Failed   int    `json:"failed"`
	DryRun   bool   `json:"dry_run"`
	// Skipped is set when another process held the lease.
	Skipped bool `json:"skipped,omitempty"`
}

// runOnce acquires the lease, scans the collection and removes eligible
// messages, writing one audit line per item.
func (m *Manager) runOnce(ctx context.Context) (Report, error) {
	rep := Report{RunID: uuid.NewString(), DryRun: m.cfg.DryRun}

	if m.cfg.AuditDir != "" {
		lock := newFileLease(m.cfg.AuditDir, m.clock)
		owner := rep.RunID
		acq, err := lock.Acquire(owner, lockTTL)
		if err != nil {
			return rep, fmt.Errorf("lease acquire failed: %w", err)
		}
		if !acq {
			logger.Info("retention_lease_not_acquired")
			rep.Skipped = true
			return rep, nil
		}
		defer func() {
			if err := lock.Release(owner); err != nil {
				logger.Error("retention_lease_release_error", "error", err)
			}
		}()
	}

	now := m.clock.Now()
	cutoff := now.Add(-m.cfg.Period.Duration())
	logger.AuditInfo("retention_audit_header", "run_id", rep.RunID, "started_at", now.UTC().Format(time.RFC3339), "dry_run", rep.DryRun, "period", m.cfg.Period.String())

	snap, err := m.store.Get(ctx, m.path)
	if err != nil {
		return rep, fmt.Errorf("list %s: %w", m.path, err)
	}
	msgs := feed.Decode(snap)
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Scanned++
		if !eligible(msg, cutoff) {
			continue
		}
		rep.Eligible++
		if rep.DryRun {
			logger.AuditInfo("retention_audit_item", "run_id", rep.RunID, "id", msg.ID, "status", "dry_run")
			continue
		}
		if err := m.store.Remove(ctx, realtime.Join(m.path, msg.ID)); err != nil {
			rep.Failed++
			logger.AuditInfo("retention_audit_item", "run_id", rep.RunID, "id", msg.ID, "status", "failed", "error", err.Error())
			logger.Error("retention_purge_failed", "id", msg.ID, "error", err)
			continue
		}
		rep.Purged++
		metrics.Purged.Inc()
		logger.AuditInfo("retention_audit_item", "run_id", rep.RunID, "id", msg.ID, "status", "success")
	}

	logger.AuditInfo("retention_audit_footer", "run_id", rep.RunID, "scanned", rep.Scanned, "purged", rep.Purged, "failed", rep.Failed)
	logger.Info("retention_run_complete", "run_id", rep.RunID, "scanned", rep.Scanned, "eligible", rep.Eligible, "purged", rep.Purged)
	return rep, nil
}

// eligible reports whether a soft-deleted message is past the cutoff.
// Records without deletedAt fall back to their send time.
func eligible(msg models.Message, cutoff time.Time) bool {
	if !msg.Deleted {
		return false
	}
	at := msg.DeletedAt
	if at == 0 {
		at = msg.CreatedAt
	}
	return timeutil.FromMillis(at).Before(cutoff)
}
