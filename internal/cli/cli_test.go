package cli

import (
	"bytes"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"communitychat/pkg/api"
	"communitychat/pkg/realtime"
	"communitychat/pkg/timeutil"
)

type env struct {
	server string
	dir    string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := realtime.NewMemory(timeutil.System)
	t.Cleanup(func() { store.Close() })
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &fasthttp.Server{Handler: api.Handler(api.Deps{DB: store, MaxWatchWait: time.Second})}
	go srv.Serve(ln)
	t.Cleanup(func() { _ = srv.Shutdown() })
	return &env{server: "http://" + ln.Addr().String(), dir: t.TempDir()}
}

// run executes chatctl as the user in state dir user.
func (e *env) run(t *testing.T, user string, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{
		"--profile", filepath.Join(e.dir, user+".yaml"),
		"--server", e.server,
		"--state-dir", filepath.Join(e.dir, user),
	}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestWhoamiIsStable(t *testing.T) {
	e := newEnv(t)
	first, err := e.run(t, "ann", "", "whoami")
	require.NoError(t, err)
	second, err := e.run(t, "ann", "", "whoami")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Contains(t, first, "name:   Pengguna")
}

func TestSendListUnsend(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "ann", "", "name", "Ann")
	require.NoError(t, err)

	id, err := e.run(t, "ann", "", "send", "hello", "there")
	require.NoError(t, err)
	id = strings.TrimSpace(id)
	require.NotEmpty(t, id)

	out, err := e.run(t, "bob", "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Today")
	assert.Contains(t, out, "Ann  hello there")

	out, err = e.run(t, "bob", "", "unsend", id)
	require.NoError(t, err)
	assert.Contains(t, out, "not your message")

	out, err = e.run(t, "ann", "", "list", "--ids")
	require.NoError(t, err)
	assert.Contains(t, out, "* "+id)

	out, err = e.run(t, "ann", "", "unsend", id)
	require.NoError(t, err)
	assert.Contains(t, out, "message removed")

	out, err = e.run(t, "bob", "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "(no messages yet)")
}

func TestSendEmptyIsRejected(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "ann", "", "send", "   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestWatchPromptSendsLines(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "ann", "hi from the prompt\nagain\n/quit\n", "watch", "--input")
	require.NoError(t, err)
	assert.Contains(t, out, "cooldown active")

	out, err = e.run(t, "bob", "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "hi from the prompt")
	assert.NotContains(t, out, "again")
}

func TestConfigSetAndShow(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "ann", "", "config", "set", "api_key", "pk-abcdef")
	require.NoError(t, err)
	out, err := e.run(t, "ann", "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "pk*****ef")
	assert.NotContains(t, out, "pk-abcdef")

	_, err = e.run(t, "ann", "", "config", "set", "locale", "fr")
	assert.Error(t, err)
}

func TestUnreachableServer(t *testing.T) {
	e := newEnv(t)
	e.server = "http://127.0.0.1:1"
	_, err := e.run(t, "ann", "", "send", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unreachable")
}
