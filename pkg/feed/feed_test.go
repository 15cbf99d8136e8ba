package feed

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"communitychat/pkg/chaterr"
	"communitychat/pkg/models"
	"communitychat/pkg/realtime"
	"communitychat/pkg/timeutil"
)

var u1 = models.Identity{LocalID: "u1", DisplayName: "Pengguna1"}

func newAdapter(t *testing.T) (*Adapter, *realtime.Store) {
	t.Helper()
	db := realtime.NewMemory(timeutil.NewFakeClock(time.UnixMilli(1_000)))
	t.Cleanup(func() { db.Close() })
	a, err := New(db, "")
	require.NoError(t, err)
	return a, db
}

func TestAppendWritesWireShape(t *testing.T) {
	a, db := newAdapter(t)
	ctx := context.Background()

	id, err := a.Append(ctx, "Hello world", u1)
	require.NoError(t, err)

	snap, err := db.Get(ctx, realtime.Join(DefaultPath, id))
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(snap.Value, &raw))
	assert.Equal(t, "Hello world", raw["text"])
	assert.Equal(t, "Pengguna1", raw["username"])
	assert.Equal(t, "u1", raw["userId"])
	assert.Equal(t, false, raw["isDeleted"])
	assert.EqualValues(t, 1_000, raw["timestamp"])
	assert.NotContains(t, raw, "deletedAt")

	m, ok, err := a.Lookup(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.Message{ID: id, Text: "Hello world", AuthorID: "u1", AuthorName: "Pengguna1", CreatedAt: 1_000}, m)
}

func TestSoftDelete(t *testing.T) {
	a, _ := newAdapter(t)
	ctx := context.Background()
	id, err := a.Append(ctx, "bye", u1)
	require.NoError(t, err)

	require.NoError(t, a.SoftDelete(ctx, id, 2_000))
	m, ok, err := a.Lookup(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, m.Deleted)
	assert.EqualValues(t, 2_000, m.DeletedAt)
	assert.Equal(t, "bye", m.Text)
}

func TestSoftDeleteMissingIsTransportError(t *testing.T) {
	a, _ := newAdapter(t)
	err := a.SoftDelete(context.Background(), "missing", 1)
	require.Error(t, err)
	assert.True(t, chaterr.IsTransport(err))
	assert.True(t, errors.Is(err, realtime.ErrNotFound))
}

func TestLookupMissing(t *testing.T) {
	a, _ := newAdapter(t)
	for _, id := range []string{"missing", "bad.id"} {
		_, ok, err := a.Lookup(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, ok, id)
	}
}

func TestSubscribeDeliversWholeSet(t *testing.T) {
	a, _ := newAdapter(t)
	ctx := context.Background()
	got := make(chan []models.Message, 16)
	unsub, err := a.Subscribe(func(ms []models.Message) { got <- ms })
	require.NoError(t, err)
	defer unsub()

	first := <-got
	assert.Empty(t, first)

	_, err = a.Append(ctx, "one", u1)
	require.NoError(t, err)
	_, err = a.Append(ctx, "two", u1)
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ms := <-got:
			if len(ms) == 2 {
				assert.Equal(t, "one", ms[0].Text)
				assert.Equal(t, "two", ms[1].Text)
				unsub()
				unsub()
				return
			}
		case <-deadline:
			t.Fatalf("never saw both messages")
		}
	}
}

func TestDecodeSkipsMalformed(t *testing.T) {
	snap := realtime.Snapshot{
		Path:  DefaultPath,
		Value: json.RawMessage(`{"b":{"text":"ok","userId":"u1","timestamp":5},"a":{"text":1}}`),
	}
	ms := Decode(snap)
	require.Len(t, ms, 1)
	assert.Equal(t, "b", ms[0].ID)
	assert.Nil(t, Decode(realtime.Snapshot{Value: json.RawMessage(`[1,2]`)}))
}

type brokenDB struct{ err error }

func (b brokenDB) Push(context.Context, string, map[string]any) (string, error) { return "", b.err }
func (b brokenDB) Update(context.Context, string, map[string]any) error         { return b.err }
func (b brokenDB) Get(context.Context, string) (realtime.Snapshot, error) {
	return realtime.Snapshot{}, b.err
}
func (b brokenDB) OnValue(string, func(realtime.Snapshot)) (realtime.Unsubscribe, error) {
	return nil, b.err
}

func TestStoreFailuresAreTransportErrors(t *testing.T) {
	boom := errors.New("network down")
	a, err := New(brokenDB{err: boom}, "")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = a.Append(ctx, "x", u1)
	assert.True(t, chaterr.IsTransport(err))
	assert.ErrorIs(t, err, boom)

	_, _, err = a.Lookup(ctx, "id")
	assert.True(t, chaterr.IsTransport(err))

	_, err = a.Subscribe(func([]models.Message) {})
	assert.True(t, chaterr.IsTransport(err))
}
