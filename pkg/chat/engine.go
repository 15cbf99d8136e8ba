// Package chat composes identity, moderation, cooldown, the message feed,
// unsend and presentation into the engine a chat surface drives.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"communitychat/pkg/chaterr"
	"communitychat/pkg/cooldown"
	"communitychat/pkg/feed"
	"communitychat/pkg/identity"
	"communitychat/pkg/kv"
	"communitychat/pkg/logger"
	"communitychat/pkg/metrics"
	"communitychat/pkg/models"
	"communitychat/pkg/moderation"
	"communitychat/pkg/present"
	"communitychat/pkg/realtime"
	"communitychat/pkg/timeutil"
	"communitychat/pkg/unsend"
)

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	Clock      timeutil.Clock
	Cooldown   time.Duration
	Moderator  *moderation.Moderator
	FeedPath   string
	Location   *time.Location
	Locale     present.Locale
	MaxNameLen int
}

// Engine is the headless chat client for one local participant.
type Engine struct {
	clock    timeutil.Clock
	mod      *moderation.Moderator
	ids      *identity.Manager
	limiter  *cooldown.Limiter
	feed     *feed.Adapter
	unsender *unsend.Controller
	grouper  *present.Grouper
}

// New wires an Engine over a real-time database and a local key/value store.
func New(db realtime.Database, local kv.Store, opts Options) (*Engine, error) {
	if local == nil {
		return nil, errors.New("chat: nil local store")
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.System
	}
	mod := opts.Moderator
	if mod == nil {
		mod = moderation.New(moderation.DefaultBlockList)
	}
	f, err := feed.New(db, opts.FeedPath)
	if err != nil {
		return nil, err
	}
	return &Engine{
		clock: clock,
		mod:   mod,
		ids: identity.New(local, identity.Options{
			Moderate:   mod.Moderate,
			MaxNameLen: opts.MaxNameLen,
		}),
		limiter:  cooldown.New(clock, opts.Cooldown),
		feed:     f,
		unsender: unsend.New(f, clock),
		grouper:  present.NewGrouper(clock, opts.Location, opts.Locale),
	}, nil
}

// Identity returns the local participant, creating it on first use.
func (e *Engine) Identity() models.Identity { return e.ids.GetOrCreate() }

// SetDisplayName moderates and stores a new display name.
func (e *Engine) SetDisplayName(raw string) models.Identity { return e.ids.SetDisplayName(raw) }

// Send moderates raw and appends it as the local participant. Empty text
// and an active cooldown are rejected with a ValidationError before the
// store is touched. A failed append releases the cooldown.
func (e *Engine) Send(ctx context.Context, raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		metrics.SendRejected.WithLabelValues(string(chaterr.ReasonEmptyText)).Inc()
		return "", &chaterr.ValidationError{Reason: chaterr.ReasonEmptyText}
	}

	clean, rep := e.mod.Redact(text)
	if rep.Total() > 0 {
		metrics.Redactions.WithLabelValues("profanity").Add(float64(rep.Profanity))
		metrics.Redactions.WithLabelValues("phone").Add(float64(rep.Phones))
		metrics.Redactions.WithLabelValues("url").Add(float64(rep.URLs))
	}

	if d := e.limiter.TrySend(); !d.Allowed {
		metrics.SendRejected.WithLabelValues(string(chaterr.ReasonCooldown)).Inc()
		return "", &chaterr.ValidationError{Reason: chaterr.ReasonCooldown, Remaining: d.Remaining}
	}

	id, err := e.feed.Append(ctx, clean, e.ids.GetOrCreate())
	if err != nil {
		e.limiter.Reset()
		metrics.SendFailed.Inc()
		logger.Warn("send_failed", "error", err)
		return "", err
	}
	metrics.MessagesSent.Inc()
	return id, nil
}

// Unsend soft-deletes one of the local participant's messages.
func (e *Engine) Unsend(ctx context.Context, messageID string) (unsend.Result, error) {
	res, err := e.unsender.Unsend(ctx, messageID, e.ids.GetOrCreate().LocalID)
	if err != nil {
		metrics.Unsends.WithLabelValues("error").Inc()
		return res, err
	}
	metrics.Unsends.WithLabelValues(string(res.Outcome)).Inc()
	return res, nil
}

// Messages reads the feed once and groups it for display.
func (e *Engine) Messages(ctx context.Context) (View, error) {
	ms, err := e.feed.List(ctx)
	if err != nil {
		return View{}, err
	}
	return e.view(ms), nil
}

// Subscribe calls fn with a fresh View whenever the feed changes. Each View
// replaces the previous one.
func (e *Engine) Subscribe(fn func(View)) (realtime.Unsubscribe, error) {
	return e.feed.Subscribe(func(ms []models.Message) {
		v := e.view(ms)
		metrics.Snapshots.Inc()
		metrics.VisibleMessages.Set(float64(v.Visible))
		fn(v)
	})
}

func (e *Engine) view(ms []models.Message) View {
	days := e.grouper.Group(ms)
	n := 0
	for _, d := range days {
		n += len(d.Messages)
	}
	return View{Days: days, Visible: n, Total: len(ms), me: e.ids.GetOrCreate().LocalID}
}

// CooldownRemaining is how long until the next send is admitted.
func (e *Engine) CooldownRemaining() time.Duration { return e.limiter.Remaining() }

// CooldownProgress is the elapsed share of the current cooldown in [0,1].
func (e *Engine) CooldownProgress() float64 { return e.limiter.Progress() }

// WatchCooldown reports the remaining cooldown every interval until it
// reaches zero (reported once) or ctx ends. Purely advisory.
func (e *Engine) WatchCooldown(ctx context.Context, interval time.Duration, fn func(time.Duration)) {
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		rem := e.limiter.Remaining()
		fn(rem)
		if rem <= 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Clock formats a message's send time for display.
func (e *Engine) Clock(m models.Message) string { return e.grouper.Clock(m) }
