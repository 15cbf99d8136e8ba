// Package feed translates between the chat domain types and the records kept
// in the real-time store. It has no business rules of its own.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"communitychat/pkg/chaterr"
	"communitychat/pkg/logger"
	"communitychat/pkg/models"
	"communitychat/pkg/realtime"
)

// DefaultPath is the shared message collection.
const DefaultPath = "communityChat/messages"

// Adapter appends to, reads and watches one message collection.
type Adapter struct {
	db   realtime.Database
	path string
}

// New returns an Adapter over db. An empty path selects DefaultPath.
func New(db realtime.Database, path string) (*Adapter, error) {
	if db == nil {
		return nil, errors.New("feed: nil database")
	}
	if path == "" {
		path = DefaultPath
	}
	p, err := realtime.CleanPath(path)
	if err != nil {
		return nil, err
	}
	return &Adapter{db: db, path: p}, nil
}

// Path returns the collection path.
func (a *Adapter) Path() string { return a.path }

// Append submits text as a new message by author. The store assigns the
// timestamp.
func (a *Adapter) Append(ctx context.Context, text string, author models.Identity) (string, error) {
	key, err := a.db.Push(ctx, a.path, map[string]any{
		models.FieldText:      text,
		models.FieldUsername:  author.DisplayName,
		models.FieldTimestamp: realtime.ServerTimestamp,
		models.FieldUserID:    author.LocalID,
		models.FieldIsDeleted: false,
	})
	if err != nil {
		return "", chaterr.Transport("append", err)
	}
	logger.Debug("message_appended", "id", key, "author", author.LocalID)
	return key, nil
}

// SoftDelete marks a message deleted. It does not check ownership.
func (a *Adapter) SoftDelete(ctx context.Context, id string, deletedAt int64) error {
	err := a.db.Update(ctx, realtime.Join(a.path, id), map[string]any{
		models.FieldIsDeleted: true,
		models.FieldDeletedAt: deletedAt,
	})
	if err != nil {
		return chaterr.Transport("soft_delete", err)
	}
	logger.Debug("message_soft_deleted", "id", id)
	return nil
}

// Lookup reads a single message. ok is false when no such message exists.
func (a *Adapter) Lookup(ctx context.Context, id string) (models.Message, bool, error) {
	snap, err := a.db.Get(ctx, realtime.Join(a.path, id))
	if err != nil {
		if errors.Is(err, realtime.ErrNotFound) || errors.Is(err, realtime.ErrInvalidPath) {
			return models.Message{}, false, nil
		}
		return models.Message{}, false, chaterr.Transport("lookup", err)
	}
	if !snap.Exists() {
		return models.Message{}, false, nil
	}
	var rec models.Record
	if err := json.Unmarshal(snap.Value, &rec); err != nil {
		return models.Message{}, false, fmt.Errorf("decode message %s: %w", id, err)
	}
	return rec.ToMessage(id), true, nil
}

// List reads the whole collection once.
func (a *Adapter) List(ctx context.Context) ([]models.Message, error) {
	snap, err := a.db.Get(ctx, a.path)
	if err != nil {
		return nil, chaterr.Transport("list", err)
	}
	return Decode(snap), nil
}

// Subscribe calls fn with the complete message set now and after every
// change. The returned function is safe to call more than once.
func (a *Adapter) Subscribe(fn func([]models.Message)) (realtime.Unsubscribe, error) {
	unsub, err := a.db.OnValue(a.path, func(s realtime.Snapshot) {
		fn(Decode(s))
	})
	if err != nil {
		return nil, chaterr.Transport("subscribe", err)
	}
	var once sync.Once
	return func() { once.Do(unsub) }, nil
}

// Decode converts a collection snapshot into messages ordered by key.
// Records that do not decode are skipped.
func Decode(s realtime.Snapshot) []models.Message {
	children, err := s.Children()
	if err != nil {
		logger.Warn("feed_snapshot_malformed", "path", s.Path, "error", err)
		return nil
	}
	keys := make([]string, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]models.Message, 0, len(keys))
	for _, k := range keys {
		var rec models.Record
		if err := json.Unmarshal(children[k], &rec); err != nil {
			logger.Warn("feed_record_malformed", "id", k, "error", err)
			continue
		}
		out = append(out, rec.ToMessage(k))
	}
	return out
}
