package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"communitychat/pkg/chaterr"
	"communitychat/pkg/identity"
	"communitychat/pkg/kv"
	"communitychat/pkg/moderation"
	"communitychat/pkg/realtime"
	"communitychat/pkg/timeutil"
	"communitychat/pkg/unsend"
)

type harness struct {
	clock *timeutil.FakeClock
	db    *realtime.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := timeutil.NewFakeClock(time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC))
	db := realtime.NewMemory(clock)
	t.Cleanup(func() { db.Close() })
	return &harness{clock: clock, db: db}
}

func (h *harness) engine(t *testing.T, localID string) *Engine {
	t.Helper()
	local := kv.NewMemory()
	require.NoError(t, local.Set(identity.KeyUserID, localID))
	e, err := New(h.db, local, Options{Clock: h.clock, Location: time.UTC})
	require.NoError(t, err)
	return e
}

func TestSendHelloWorld(t *testing.T) {
	h := newHarness(t)
	e := h.engine(t, "u1")
	ctx := context.Background()

	id, err := e.Send(ctx, "Hello world")
	require.NoError(t, err)

	v, err := e.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, v.Days, 1)
	require.Len(t, v.Days[0].Messages, 1)
	m := v.Days[0].Messages[0]
	assert.Equal(t, id, m.ID)
	assert.Equal(t, "u1", m.AuthorID)
	assert.Equal(t, "Hello world", m.Text)
	assert.False(t, m.Deleted)
	assert.True(t, v.Mine(m))
	assert.Equal(t, "Today", v.Days[0].Label)
	assert.Equal(t, "09:00", e.Clock(m))
}

func TestSendModeratesPhoneNumbers(t *testing.T) {
	h := newHarness(t)
	e := h.engine(t, "u1")
	ctx := context.Background()

	_, err := e.Send(ctx, "call me at 0812-3456-7890")
	require.NoError(t, err)
	v, err := e.Messages(ctx)
	require.NoError(t, err)
	assert.Equal(t, "call me at "+moderation.PhonePlaceholder, v.Days[0].Messages[0].Text)
}

func TestSendValidation(t *testing.T) {
	h := newHarness(t)
	e := h.engine(t, "u1")
	ctx := context.Background()

	_, err := e.Send(ctx, "   ")
	ve, ok := chaterr.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, chaterr.ReasonEmptyText, ve.Reason)
	assert.Zero(t, e.CooldownRemaining(), "empty text must not start a cooldown")

	_, err = e.Send(ctx, "first")
	require.NoError(t, err)

	h.clock.Advance(3 * time.Second)
	_, err = e.Send(ctx, "second")
	ve, ok = chaterr.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, chaterr.ReasonCooldown, ve.Reason)
	assert.Equal(t, 7*time.Second, ve.Remaining)

	h.clock.Advance(7 * time.Second)
	_, err = e.Send(ctx, "third")
	require.NoError(t, err)

	v, err := e.Messages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Visible)
}

type downDB struct{ realtime.Database }

func (downDB) Push(context.Context, string, map[string]any) (string, error) {
	return "", errors.New("offline")
}

func TestFailedSendReleasesCooldown(t *testing.T) {
	h := newHarness(t)
	e, err := New(downDB{h.db}, kv.NewMemory(), Options{Clock: h.clock})
	require.NoError(t, err)

	_, err = e.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, chaterr.IsTransport(err))
	assert.Zero(t, e.CooldownRemaining())
}

func TestUnsendOwnership(t *testing.T) {
	h := newHarness(t)
	alice := h.engine(t, "u1")
	bob := h.engine(t, "u2")
	ctx := context.Background()

	m1, err := alice.Send(ctx, "from alice")
	require.NoError(t, err)

	res, err := bob.Unsend(ctx, m1)
	require.NoError(t, err)
	assert.Equal(t, unsend.OutcomeNotOwner, res.Outcome)
	v, err := bob.Messages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Visible)
	assert.False(t, v.Mine(v.Days[0].Messages[0]))

	res, err = alice.Unsend(ctx, m1)
	require.NoError(t, err)
	assert.Equal(t, unsend.OutcomeApplied, res.Outcome)
	v, err = alice.Messages(ctx)
	require.NoError(t, err)
	assert.Zero(t, v.Visible)
	assert.Equal(t, 1, v.Total)
}

func TestSubscribeSeesOtherClients(t *testing.T) {
	h := newHarness(t)
	alice := h.engine(t, "u1")
	bob := h.engine(t, "u2")

	views := make(chan View, 16)
	unsub, err := bob.Subscribe(func(v View) { views <- v })
	require.NoError(t, err)
	defer unsub()
	<-views

	_, err = alice.Send(context.Background(), "hi bob")
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-views:
			if v.Visible == 1 {
				assert.Equal(t, "hi bob", v.Days[0].Messages[0].Text)
				return
			}
		case <-deadline:
			t.Fatalf("bob never saw the message")
		}
	}
}

func TestSetDisplayNameIsModerated(t *testing.T) {
	h := newHarness(t)
	e := h.engine(t, "u1")
	id := e.SetDisplayName("  bego banget  ")
	assert.Equal(t, "**** banget", id.DisplayName)
	assert.Equal(t, "u1", id.LocalID)
}

func TestWatchCooldown(t *testing.T) {
	h := newHarness(t)
	e := h.engine(t, "u1")

	var got []time.Duration
	e.WatchCooldown(context.Background(), time.Millisecond, func(d time.Duration) { got = append(got, d) })
	assert.Equal(t, []time.Duration{0}, got)

	_, err := e.Send(context.Background(), "x")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	e.WatchCooldown(ctx, time.Millisecond, func(d time.Duration) {
		calls++
		if calls == 3 {
			h.clock.Advance(10 * time.Second)
		}
	})
	cancel()
	assert.Equal(t, 4, calls)
	assert.Equal(t, 1.0, e.CooldownProgress())
}
