package realtime

import (
	"context"
	"sync"

	"communitychat/pkg/timeutil"
)

type memoryBackend struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemory returns a Store kept entirely in process memory.
func NewMemory(clock timeutil.Clock) *Store {
	return NewStore("memory", &memoryBackend{data: make(map[string]map[string][]byte)}, clock)
}

func (m *memoryBackend) Load(_ context.Context, collection, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.data[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), rec...), nil
}

func (m *memoryBackend) Save(_ context.Context, collection, key string, rec []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.data[collection]
	if !ok {
		c = make(map[string][]byte)
		m.data[collection] = c
	}
	c[key] = append([]byte(nil), rec...)
	return nil
}

func (m *memoryBackend) List(_ context.Context, collection string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(m.data[collection]))
	for k, v := range m.data[collection] {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

func (m *memoryBackend) Delete(_ context.Context, collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.data[collection]; ok {
		delete(c, key)
		if len(c) == 0 {
			delete(m.data, collection)
		}
	}
	return nil
}

func (m *memoryBackend) Close() error { return nil }
