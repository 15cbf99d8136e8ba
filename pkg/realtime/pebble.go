package realtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"communitychat/pkg/logger"
	"communitychat/pkg/timeutil"
)

// Records live under "r:<collection>\x00<key>". The separator sorts before
// every printable byte, so one collection is a contiguous key range.
const (
	recordPrefix = "r:"
	keySep       = byte(0x00)
)

type pebbleBackend struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) a durable Store at path.
func OpenPebble(path string, opts *pebble.Options, clock timeutil.Clock) (*Store, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		logger.Error("realtime_pebble_open_failed", "path", path, "error", err)
		return nil, fmt.Errorf("open pebble store: %w", err)
	}
	logger.Info("realtime_pebble_opened", "path", path)
	return NewStore("pebble", &pebbleBackend{db: db}, clock), nil
}

func recordKey(collection, key string) []byte {
	b := make([]byte, 0, len(recordPrefix)+len(collection)+1+len(key))
	b = append(b, recordPrefix...)
	b = append(b, collection...)
	b = append(b, keySep)
	return append(b, key...)
}

func collectionBounds(collection string) ([]byte, []byte) {
	lower := append([]byte(recordPrefix+collection), keySep)
	upper := append([]byte(recordPrefix+collection), keySep+1)
	return lower, upper
}

func (p *pebbleBackend) Load(_ context.Context, collection, key string) ([]byte, error) {
	v, closer, err := p.db.Get(recordKey(collection, key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	// Pebble data is only valid until closer is called.
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (p *pebbleBackend) Save(_ context.Context, collection, key string, rec []byte) error {
	return p.db.Set(recordKey(collection, key), rec, pebble.Sync)
}

func (p *pebbleBackend) List(_ context.Context, collection string) (map[string][]byte, error) {
	lower, upper := collectionBounds(collection)
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	out := make(map[string][]byte)
	for iter.First(); iter.Valid(); iter.Next() {
		k := string(iter.Key()[len(lower):])
		v := make([]byte, len(iter.Value()))
		copy(v, iter.Value())
		out[k] = v
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return out, nil
}

func (p *pebbleBackend) Delete(_ context.Context, collection, key string) error {
	return p.db.Delete(recordKey(collection, key), pebble.Sync)
}

func (p *pebbleBackend) Close() error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}
