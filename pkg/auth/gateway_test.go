package auth

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func newCtx(method, uri string, headers map[string]string) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, &net.TCPAddr{IP: net.ParseIP("10.0.0.7"), Port: 5555}, nil)
	return ctx
}

func run(cfg SecConfig, ctx *fasthttp.RequestCtx) (called bool, role string) {
	h := AuthenticateRequestMiddlewareFast(cfg)(func(ctx *fasthttp.RequestCtx) {
		called = true
		role = string(ctx.Request.Header.Peek(RoleHeader))
	})
	h(ctx)
	return called, role
}

func baseCfg() SecConfig {
	return SecConfig{RPS: 100, Burst: 100, StorePath: "communityChat/messages"}
}

func TestOpenStoreAllowsKeylessFrontend(t *testing.T) {
	called, role := run(baseCfg(), newCtx("GET", "/v1/db/communityChat/messages", nil))
	assert.True(t, called)
	assert.Equal(t, "frontend", role)
}

func TestFrontendConfinedToStorePath(t *testing.T) {
	cfg := baseCfg()
	for _, uri := range []string{"/v1/db/other", "/v1/db/communityChat/messagesX", "/admin/jobs/purge"} {
		ctx := newCtx("GET", uri, nil)
		called, _ := run(cfg, ctx)
		assert.False(t, called, uri)
		assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode(), uri)
	}
	called, _ := run(cfg, newCtx("GET", "/v1/watch/communityChat/messages/abc", nil))
	assert.True(t, called)
}

func TestKeysRequiredWhenConfigured(t *testing.T) {
	cfg := baseCfg()
	cfg.FrontendKeys = map[string]struct{}{"pk": {}}
	cfg.AdminKeys = map[string]struct{}{"sk": {}}

	ctx := newCtx("GET", "/v1/db/communityChat/messages", nil)
	called, _ := run(cfg, ctx)
	assert.False(t, called)
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())

	ctx = newCtx("GET", "/v1/db/communityChat/messages", map[string]string{"X-API-Key": "nope"})
	called, _ = run(cfg, ctx)
	assert.False(t, called)

	called, role := run(cfg, newCtx("GET", "/v1/db/communityChat/messages", map[string]string{"X-API-Key": "pk"}))
	assert.True(t, called)
	assert.Equal(t, "frontend", role)

	called, role = run(cfg, newCtx("POST", "/admin/jobs/purge", map[string]string{"Authorization": "Bearer sk"}))
	assert.True(t, called)
	assert.Equal(t, "admin", role)
}

func TestProbesBypassAuth(t *testing.T) {
	cfg := baseCfg()
	cfg.FrontendKeys = map[string]struct{}{"pk": {}}
	called, role := run(cfg, newCtx("GET", "/healthz", nil))
	assert.True(t, called)
	assert.Equal(t, "unauth", role)
}

func TestCORSPreflight(t *testing.T) {
	cfg := baseCfg()
	cfg.AllowedOrigins = []string{"https://chat.example"}
	ctx := newCtx("OPTIONS", "/v1/db/communityChat/messages", map[string]string{"Origin": "https://chat.example"})
	called, _ := run(cfg, ctx)
	assert.False(t, called)
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())
	assert.Equal(t, "https://chat.example", string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")))

	ctx = newCtx("OPTIONS", "/v1/db/communityChat/messages", map[string]string{"Origin": "https://evil.example"})
	run(cfg, ctx)
	assert.Empty(t, ctx.Response.Header.Peek("Access-Control-Allow-Origin"))
}

func TestIPWhitelist(t *testing.T) {
	cfg := baseCfg()
	cfg.IPWhitelist = []string{"10.0.0.8"}
	ctx := newCtx("GET", "/v1/db/communityChat/messages", nil)
	called, _ := run(cfg, ctx)
	assert.False(t, called)
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())

	cfg.IPWhitelist = []string{"10.0.0.7"}
	called, _ = run(cfg, newCtx("GET", "/v1/db/communityChat/messages", nil))
	assert.True(t, called)
}

func TestRateLimit(t *testing.T) {
	cfg := baseCfg()
	cfg.RPS = 0.001
	cfg.Burst = 2
	mw := AuthenticateRequestMiddlewareFast(cfg)(func(ctx *fasthttp.RequestCtx) {})
	codes := []int{}
	for i := 0; i < 3; i++ {
		ctx := newCtx("GET", "/v1/db/communityChat/messages", nil)
		mw(ctx)
		codes = append(codes, ctx.Response.StatusCode())
	}
	assert.Equal(t, []int{200, 200, fasthttp.StatusTooManyRequests}, codes)
}

func TestLimiterPoolSweep(t *testing.T) {
	p := &limiterPool{cfg: SecConfig{RPS: 1, Burst: 1}, ttl: time.Minute, cleanupPeriod: time.Hour}
	require.True(t, p.Allow("a"))
	p.Allow("b")
	require.Equal(t, 2, p.size())
	p.sweep(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 0, p.size())
}
