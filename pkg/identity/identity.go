// Package identity derives and persists the anonymous local participant.
package identity

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"communitychat/pkg/kv"
	"communitychat/pkg/logger"
	"communitychat/pkg/models"
	"communitychat/pkg/moderation"
)

const (
	KeyUserID   = "chatUserId"
	KeyUsername = "chatUsername"

	// DefaultNamePrefix is followed by a random number in [0, 10000).
	DefaultNamePrefix = "Pengguna"
	// MaxNameLen bounds display names, in runes.
	MaxNameLen = 20
)

// Options customises a Manager. Zero values select the defaults.
type Options struct {
	Moderate   func(string) string
	NewID      func() string
	Rand       *rand.Rand
	MaxNameLen int
}

// Manager owns the local Identity. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	store    kv.Store
	moderate func(string) string
	newID    func() string
	rnd      *rand.Rand
	maxLen   int
	cur      *models.Identity
}

func New(store kv.Store, opts Options) *Manager {
	m := &Manager{
		store:    store,
		moderate: opts.Moderate,
		newID:    opts.NewID,
		rnd:      opts.Rand,
		maxLen:   opts.MaxNameLen,
	}
	if m.moderate == nil {
		m.moderate = moderation.Moderate
	}
	if m.newID == nil {
		m.newID = func() string { return uuid.NewString() }
	}
	if m.rnd == nil {
		m.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if m.maxLen <= 0 {
		m.maxLen = MaxNameLen
	}
	return m
}

// GetOrCreate returns the persisted identity, creating and persisting a new
// one on first use.
func (m *Manager) GetOrCreate() models.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked()
}

func (m *Manager) loadLocked() models.Identity {
	if m.cur != nil {
		return *m.cur
	}
	id, ok := m.store.Get(KeyUserID)
	if !ok || strings.TrimSpace(id) == "" {
		id = m.newID()
		m.persist(KeyUserID, id)
		logger.Info("identity_created", "local_id", id)
	}
	name, ok := m.store.Get(KeyUsername)
	if !ok || strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("%s%d", DefaultNamePrefix, m.rnd.Intn(10000))
		m.persist(KeyUsername, name)
	}
	m.cur = &models.Identity{LocalID: id, DisplayName: name}
	return *m.cur
}

// SetDisplayName moderates raw and stores it as the new display name. Blank
// input, or a name equal to the current one after moderation, leaves the
// identity unchanged.
func (m *Manager) SetDisplayName(raw string) models.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.loadLocked()

	name := strings.TrimSpace(raw)
	if name == "" {
		return cur
	}
	if r := []rune(name); len(r) > m.maxLen {
		name = strings.TrimSpace(string(r[:m.maxLen]))
	}
	name = m.moderate(name)
	if name == "" || name == cur.DisplayName {
		return cur
	}
	m.persist(KeyUsername, name)
	m.cur.DisplayName = name
	logger.Info("identity_renamed", "local_id", cur.LocalID)
	return *m.cur
}

// Forget clears the persisted identity. The next GetOrCreate mints a new one.
func (m *Manager) Forget() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cur = nil
	if err := m.store.Remove(KeyUserID); err != nil {
		return err
	}
	return m.store.Remove(KeyUsername)
}

func (m *Manager) persist(key, value string) {
	if err := m.store.Set(key, value); err != nil {
		logger.Warn("identity_persist_failed", "key", key, "error", err)
	}
}
