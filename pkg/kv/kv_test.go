package kv

import (
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, s Store) {
	t.Helper()
	_, ok := s.Get("chatUserId")
	assert.False(t, ok)

	require.NoError(t, s.Set("chatUserId", "abc"))
	v, ok := s.Get("chatUserId")
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	require.NoError(t, s.Set("chatUserId", "def"))
	v, _ = s.Get("chatUserId")
	assert.Equal(t, "def", v)

	require.NoError(t, s.Remove("chatUserId"))
	_, ok = s.Get("chatUserId")
	assert.False(t, ok)
	require.NoError(t, s.Remove("never-set"))
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory())
	var zero Memory
	exercise(t, &zero)
}

func TestPebble(t *testing.T) {
	fs := vfs.NewMem()
	s, err := OpenPebble("state", &pebble.Options{FS: fs})
	require.NoError(t, err)
	exercise(t, s)

	require.NoError(t, s.Set("chatUsername", "Budi"))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	reopened, err := OpenPebble("state", &pebble.Options{FS: fs})
	require.NoError(t, err)
	defer reopened.Close()
	v, ok := reopened.Get("chatUsername")
	assert.True(t, ok)
	assert.Equal(t, "Budi", v)
}
