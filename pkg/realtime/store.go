package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"communitychat/pkg/logger"
	"communitychat/pkg/timeutil"
)

// Backend is the persistence layer under a Store. Records are opaque JSON
// documents addressed by collection and key.
type Backend interface {
	Load(ctx context.Context, collection, key string) ([]byte, error)
	Save(ctx context.Context, collection, key string, rec []byte) error
	List(ctx context.Context, collection string) (map[string][]byte, error)
	Delete(ctx context.Context, collection, key string) error
	Close() error
}

// notifier is implemented by backends shared between processes. Publish
// announces a local mutation; Listen reports mutations made elsewhere until
// ctx is cancelled.
type notifier interface {
	Publish(ctx context.Context, path string) error
	Listen(ctx context.Context, fn func(path string)) error
}

// Store implements Database over a Backend. It owns push-key generation,
// server timestamps, versioning and listener fan-out.
type Store struct {
	backend Backend
	name    string
	stamp   *stamper

	// writeMu serialises read-modify-write cycles.
	writeMu sync.Mutex
	version atomic.Uint64
	closed  atomic.Bool

	wmu      sync.Mutex
	watchers map[uint64]*watcher
	nextID   uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStore wraps backend. name labels log lines and metrics.
func NewStore(name string, backend Backend, clock timeutil.Clock) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		backend:  backend,
		name:     name,
		stamp:    newStamper(clock),
		watchers: make(map[uint64]*watcher),
		cancel:   cancel,
	}
	if n, ok := backend.(notifier); ok {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := n.Listen(ctx, s.remoteChange); err != nil && ctx.Err() == nil {
				logger.Error("realtime_listen_stopped", "store", name, "error", err)
			}
		}()
	}
	return s
}

// Name returns the backend label.
func (s *Store) Name() string { return s.name }

// Version is the number of mutations observed by this store.
func (s *Store) Version() uint64 { return s.version.Load() }

func (s *Store) Push(ctx context.Context, path string, value map[string]any) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}
	coll, err := CleanPath(path)
	if err != nil {
		return "", err
	}
	if len(value) == 0 {
		return "", ErrEmptyValue
	}

	// Key and timestamp are taken under the same lock so key order matches
	// commit order.
	s.writeMu.Lock()
	key, err := newPushKey()
	var rec []byte
	if err == nil {
		rec, err = json.Marshal(resolve(value, s.stamp.next))
	}
	if err == nil {
		err = s.backend.Save(ctx, coll, key, rec)
	}
	s.writeMu.Unlock()
	if err != nil {
		logger.Error("realtime_push_failed", "store", s.name, "path", coll, "error", err)
		return "", fmt.Errorf("push %s: %w", coll, err)
	}
	s.changed(ctx, coll+"/"+key)
	return key, nil
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	if s.closed.Load() {
		return ErrClosed
	}
	p, err := CleanPath(path)
	if err != nil {
		return err
	}
	coll, key := split(p)
	if coll == "" {
		return fmt.Errorf("%w: update needs <collection>/<key>, got %q", ErrInvalidPath, p)
	}
	if len(fields) == 0 {
		return nil
	}

	s.writeMu.Lock()
	err = s.merge(ctx, coll, key, fields)
	s.writeMu.Unlock()
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Error("realtime_update_failed", "store", s.name, "path", p, "error", err)
		}
		return err
	}
	s.changed(ctx, p)
	return nil
}

func (s *Store) merge(ctx context.Context, coll, key string, fields map[string]any) error {
	raw, err := s.backend.Load(ctx, coll, key)
	if err != nil {
		return err
	}
	cur := map[string]any{}
	if err := json.Unmarshal(raw, &cur); err != nil {
		return fmt.Errorf("decode %s/%s: %w", coll, key, err)
	}
	for k, v := range resolve(fields, s.stamp.next) {
		if v == nil {
			delete(cur, k)
			continue
		}
		cur[k] = v
	}
	rec, err := json.Marshal(cur)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", coll, key, err)
	}
	return s.backend.Save(ctx, coll, key, rec)
}

func (s *Store) Get(ctx context.Context, path string) (Snapshot, error) {
	if s.closed.Load() {
		return Snapshot{}, ErrClosed
	}
	p, err := CleanPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	// Read the version first so a racing write is reported as newer.
	snap := Snapshot{Path: p, Version: s.version.Load()}

	if coll, key := split(p); coll != "" {
		raw, err := s.backend.Load(ctx, coll, key)
		switch {
		case err == nil:
			snap.Value = raw
			return snap, nil
		case !errors.Is(err, ErrNotFound):
			return Snapshot{}, fmt.Errorf("get %s: %w", p, err)
		}
	}

	children, err := s.backend.List(ctx, p)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list %s: %w", p, err)
	}
	if len(children) == 0 {
		snap.Value = json.RawMessage("null")
		return snap, nil
	}
	obj := make(map[string]json.RawMessage, len(children))
	for k, v := range children {
		obj[k] = v
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode %s: %w", p, err)
	}
	snap.Value = b
	return snap, nil
}

// Remove deletes the record at path. Used by retention, never by the chat
// core, which only soft-deletes.
func (s *Store) Remove(ctx context.Context, path string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	p, err := CleanPath(path)
	if err != nil {
		return err
	}
	coll, key := split(p)
	if coll == "" {
		return fmt.Errorf("%w: remove needs <collection>/<key>, got %q", ErrInvalidPath, p)
	}
	s.writeMu.Lock()
	err = s.backend.Delete(ctx, coll, key)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	s.changed(ctx, p)
	return nil
}

func (s *Store) OnValue(path string, fn func(Snapshot)) (Unsubscribe, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if fn == nil {
		return nil, errors.New("realtime: nil listener")
	}
	p, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	w := &watcher{
		path: p,
		fn:   fn,
		kick: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}

	s.wmu.Lock()
	s.nextID++
	id := s.nextID
	s.watchers[id] = w
	s.wmu.Unlock()

	w.notify()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runWatcher(w)
	}()

	return func() {
		w.close()
		s.wmu.Lock()
		delete(s.watchers, id)
		s.wmu.Unlock()
	}, nil
}

// Close stops every listener and releases the backend.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()
	s.wmu.Lock()
	for id, w := range s.watchers {
		w.close()
		delete(s.watchers, id)
	}
	s.wmu.Unlock()
	s.wg.Wait()
	return s.backend.Close()
}

// changed records a local mutation, wakes matching listeners and tells
// other processes sharing the backend.
func (s *Store) changed(ctx context.Context, path string) {
	s.bump(path)
	if n, ok := s.backend.(notifier); ok {
		if err := n.Publish(ctx, path); err != nil {
			logger.Warn("realtime_publish_failed", "store", s.name, "path", path, "error", err)
		}
	}
}

func (s *Store) remoteChange(path string) {
	if s.closed.Load() {
		return
	}
	s.bump(path)
}

func (s *Store) bump(path string) {
	s.version.Add(1)
	s.wmu.Lock()
	for _, w := range s.watchers {
		if covers(w.path, path) {
			w.notify()
		}
	}
	s.wmu.Unlock()
}

func (s *Store) runWatcher(w *watcher) {
	for {
		select {
		case <-w.stop:
			return
		case <-w.kick:
		}
		snap, err := s.Get(context.Background(), w.path)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return
			}
			logger.Warn("realtime_snapshot_failed", "store", s.name, "path", w.path, "error", err)
			continue
		}
		select {
		case <-w.stop:
			return
		default:
		}
		w.fn(snap)
	}
}

type watcher struct {
	path string
	fn   func(Snapshot)
	kick chan struct{}
	stop chan struct{}
	once sync.Once
}

// notify coalesces wake-ups; a pending kick already covers this one.
func (w *watcher) notify() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

func (w *watcher) close() {
	w.once.Do(func() { close(w.stop) })
}

// newPushKey returns a UUIDv7. Its text form sorts by creation time.
func newPushKey() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return id.String(), nil
}

// stamper hands out commit times that never go backwards, even if the wall
// clock does.
type stamper struct {
	mu    sync.Mutex
	clock timeutil.Clock
	last  int64
}

func newStamper(clock timeutil.Clock) *stamper {
	if clock == nil {
		clock = timeutil.System
	}
	return &stamper{clock: clock}
}

func (s *stamper) next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := timeutil.UnixMillis(s.clock.Now())
	if now < s.last {
		now = s.last
	}
	s.last = now
	return now
}
