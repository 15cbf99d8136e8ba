package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"communitychat/pkg/auth"
	"communitychat/pkg/chat"
	"communitychat/pkg/feed"
	"communitychat/pkg/identity"
	"communitychat/pkg/kv"
	"communitychat/pkg/realtime"
	"communitychat/pkg/timeutil"
	"communitychat/pkg/unsend"
)

const coll = feed.DefaultPath

func call(h fasthttp.RequestHandler, method, uri, body string, headers map[string]string) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != "" {
		req.SetBodyString(body)
	}
	// Init gives the context a server, which Done and Err rely on
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4000}, nil)
	h(ctx)
	return ctx
}

func errorOf(t *testing.T, ctx *fasthttp.RequestCtx) string {
	t.Helper()
	var eb struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &eb))
	return eb.Error
}

func newStore(t *testing.T) *realtime.Store {
	t.Helper()
	s := realtime.NewMemory(timeutil.NewFakeClock(time.UnixMilli(1_700_000_000_000)))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPushGetUpdate(t *testing.T) {
	h := Handler(Deps{DB: newStore(t)})

	ctx := call(h, "POST", "/v1/db/"+coll, `{"text":"hi","timestamp":{".sv":"timestamp"},"isDeleted":false}`, nil)
	require.Equal(t, fasthttp.StatusCreated, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	var out struct {
		Key string `json:"key"`
	}
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &out))
	require.NotEmpty(t, out.Key)

	ctx = call(h, "PATCH", "/v1/db/"+coll+"/"+out.Key, `{"isDeleted":true,"deletedAt":1700000000500}`, nil)
	require.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())

	ctx = call(h, "GET", "/v1/db/"+coll+"/"+out.Key, "", nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var snap realtime.Snapshot
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &snap))
	rec := map[string]any{}
	require.NoError(t, snap.Decode(&rec))
	assert.Equal(t, "hi", rec["text"])
	assert.EqualValues(t, 1_700_000_000_000, rec["timestamp"])
	assert.Equal(t, true, rec["isDeleted"])
	assert.EqualValues(t, 1_700_000_000_500, rec["deletedAt"])
}

func TestStoreErrors(t *testing.T) {
	h := Handler(Deps{DB: newStore(t)})
	cases := []struct {
		name, method, uri, body string
		status                  int
	}{
		{"update missing record", "PATCH", "/v1/db/" + coll + "/nope", `{"isDeleted":true}`, fasthttp.StatusNotFound},
		{"empty body", "POST", "/v1/db/" + coll, "", fasthttp.StatusBadRequest},
		{"array body", "POST", "/v1/db/" + coll, `[1,2]`, fasthttp.StatusBadRequest},
		{"empty object", "POST", "/v1/db/" + coll, `{}`, fasthttp.StatusBadRequest},
		{"bad path", "GET", "/v1/db/a$b", "", fasthttp.StatusBadRequest},
		{"bad since", "GET", "/v1/watch/" + coll + "?since=x", "", fasthttp.StatusBadRequest},
		{"bad wait", "GET", "/v1/watch/" + coll + "?wait=soon", "", fasthttp.StatusBadRequest},
		{"unknown route", "GET", "/v2/db/x", "", fasthttp.StatusNotFound},
		{"wrong method", "DELETE", "/v1/db/x", "", fasthttp.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := call(h, tc.method, tc.uri, tc.body, nil)
			assert.Equal(t, tc.status, ctx.Response.StatusCode())
			assert.NotEmpty(t, errorOf(t, ctx))
		})
	}
}

func TestGetMissingCollectionIsNull(t *testing.T) {
	h := Handler(Deps{DB: newStore(t)})
	ctx := call(h, "GET", "/v1/db/"+coll, "", nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var snap realtime.Snapshot
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &snap))
	assert.False(t, snap.Exists())
}

func TestWatchReturnsAfterWaitWithoutChange(t *testing.T) {
	s := newStore(t)
	h := Handler(Deps{DB: s})
	start := time.Now()
	ctx := call(h, "GET", "/v1/watch/"+coll+"?since=99&wait=50ms", "", nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestWatchSeesNewerVersion(t *testing.T) {
	s := newStore(t)
	h := Handler(Deps{DB: s})
	since := s.Version()
	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = s.Push(context.Background(), coll, map[string]any{"text": "late"})
	}()
	ctx := call(h, "GET", "/v1/watch/"+coll+"?since="+jsonUint(since)+"&wait=5s", "", nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var snap realtime.Snapshot
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &snap))
	assert.Greater(t, snap.Version, since)
	children, err := snap.Children()
	require.NoError(t, err)
	assert.Len(t, children, 1)
}

func jsonUint(v uint64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestProbes(t *testing.T) {
	ready := false
	h := Handler(Deps{DB: newStore(t), Ready: func() bool { return ready }})
	assert.Equal(t, fasthttp.StatusOK, call(h, "GET", "/healthz", "", nil).Response.StatusCode())
	assert.Equal(t, fasthttp.StatusServiceUnavailable, call(h, "GET", "/readyz", "", nil).Response.StatusCode())
	ready = true
	assert.Equal(t, fasthttp.StatusOK, call(h, "GET", "/readyz", "", nil).Response.StatusCode())
}

func TestPurgeRequiresAdmin(t *testing.T) {
	ran := 0
	deps := Deps{DB: newStore(t), Purge: func(ctx context.Context) (any, error) {
		ran++
		return map[string]int{"purged": 3}, nil
	}}
	sec := auth.SecConfig{RPS: 100, Burst: 100, StorePath: coll, AdminKeys: map[string]struct{}{"sk": {}}}
	h := auth.AuthenticateRequestMiddlewareFast(sec)(Handler(deps))

	ctx := call(h, "POST", "/admin/jobs/purge", "", nil)
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())
	assert.Zero(t, ran)

	ctx = call(h, "POST", "/admin/jobs/purge", "", map[string]string{"X-API-Key": "sk"})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, 1, ran)
	assert.JSONEq(t, `{"purged":3}`, string(ctx.Response.Body()))

	deps.Purge = func(ctx context.Context) (any, error) { return nil, errors.New("busy") }
	h = auth.AuthenticateRequestMiddlewareFast(sec)(Handler(deps))
	ctx = call(h, "POST", "/admin/jobs/purge", "", map[string]string{"X-API-Key": "sk"})
	assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())
}

func TestPurgeNotConfigured(t *testing.T) {
	h := Handler(Deps{DB: newStore(t)})
	ctx := call(h, "POST", "/admin/jobs/purge", "", map[string]string{auth.RoleHeader: "admin"})
	assert.Equal(t, fasthttp.StatusNotImplemented, ctx.Response.StatusCode())
}

// serve starts the API behind the gateway on a loopback port.
func serve(t *testing.T, db realtime.Database, sec auth.SecConfig) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &fasthttp.Server{
		Handler: auth.AuthenticateRequestMiddlewareFast(sec)(Handler(Deps{DB: db, MaxWatchWait: 2 * time.Second})),
	}
	go srv.Serve(ln)
	t.Cleanup(func() { _ = srv.Shutdown() })
	return "http://" + ln.Addr().String()
}

func remote(t *testing.T, base, key string) *realtime.RemoteDB {
	t.Helper()
	r, err := realtime.NewRemote(base, realtime.RemoteOptions{APIKey: key, Wait: time.Second, Retry: 50 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRemoteDBRoundTrip(t *testing.T) {
	base := serve(t, newStore(t), auth.SecConfig{RPS: 1000, Burst: 1000, StorePath: coll})
	r := remote(t, base, "")
	ctx := context.Background()

	key, err := r.Push(ctx, coll, map[string]any{"text": "hi", "timestamp": realtime.ServerTimestamp})
	require.NoError(t, err)
	snap, err := r.Get(ctx, realtime.Join(coll, key))
	require.NoError(t, err)
	rec := map[string]any{}
	require.NoError(t, snap.Decode(&rec))
	assert.EqualValues(t, 1_700_000_000_000, rec["timestamp"])

	err = r.Update(ctx, realtime.Join(coll, "missing"), map[string]any{"isDeleted": true})
	assert.True(t, errors.Is(err, realtime.ErrNotFound))

	// frontend callers cannot leave the chat collection
	_, err = r.Push(ctx, "elsewhere", map[string]any{"x": 1})
	var se *realtime.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, fasthttp.StatusForbidden, se.Code)
}

func TestRemoteDBRequiresKey(t *testing.T) {
	sec := auth.SecConfig{RPS: 1000, Burst: 1000, StorePath: coll, FrontendKeys: map[string]struct{}{"pk": {}}}
	base := serve(t, newStore(t), sec)

	_, err := remote(t, base, "").Get(context.Background(), coll)
	var se *realtime.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, fasthttp.StatusUnauthorized, se.Code)

	_, err = remote(t, base, "pk").Get(context.Background(), coll)
	assert.NoError(t, err)
}

func TestChatOverRemoteStore(t *testing.T) {
	base := serve(t, newStore(t), auth.SecConfig{RPS: 1000, Burst: 1000, StorePath: coll})

	engine := func(id string) *chat.Engine {
		local := kv.NewMemory()
		require.NoError(t, local.Set(identity.KeyUserID, id))
		e, err := chat.New(remote(t, base, ""), local, chat.Options{Location: time.UTC})
		require.NoError(t, err)
		return e
	}
	alice, bob := engine("alice"), engine("bob")

	views := make(chan chat.View, 16)
	unsub, err := bob.Subscribe(func(v chat.View) { views <- v })
	require.NoError(t, err)
	defer unsub()

	ctx := context.Background()
	id, err := alice.Send(ctx, "call me at 0812-3456-7890")
	require.NoError(t, err)

	waitFor := func(pred func(chat.View) bool) chat.View {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case v := <-views:
				if pred(v) {
					return v
				}
			case <-deadline:
				t.Fatal("timed out waiting for view")
			}
		}
	}
	v := waitFor(func(v chat.View) bool { return v.Visible == 1 })
	m := v.Days[0].Messages[0]
	assert.Equal(t, id, m.ID)
	assert.NotContains(t, m.Text, "0812")
	assert.False(t, v.Mine(m))

	res, err := bob.Unsend(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, unsend.OutcomeNotOwner, res.Outcome)

	res, err = alice.Unsend(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, unsend.OutcomeApplied, res.Outcome)
	waitFor(func(v chat.View) bool { return v.Visible == 0 })
}
