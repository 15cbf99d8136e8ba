// Package api exposes the real-time store over HTTP for remote chat clients
// and operators.
package api

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"

	"communitychat/pkg/metrics"
	"communitychat/pkg/realtime"
	"communitychat/pkg/router"
)

// Deps are the collaborators the handlers need.
type Deps struct {
	DB realtime.Database
	// MaxWatchWait caps the wait a client may request on /v1/watch.
	MaxWatchWait time.Duration
	// Ready reports whether the store is serving. Nil means always ready.
	Ready func() bool
	// Purge runs retention now. Nil disables the admin job route.
	Purge func(ctx context.Context) (any, error)
}

type service struct {
	Deps
}

// RegisterRoutes wires all API routes onto the provided router.
func RegisterRoutes(r *router.Router, d Deps) {
	if d.MaxWatchWait <= 0 {
		d.MaxWatchWait = 30 * time.Second
	}
	s := &service{Deps: d}

	// store
	r.POST("/v1/db/{path*}", s.push)
	r.PATCH("/v1/db/{path*}", s.update)
	r.GET("/v1/db/{path*}", s.get)
	r.GET("/v1/watch/{path*}", s.watch)

	// probes
	r.GET("/healthz", s.health)
	r.GET("/readyz", s.ready)

	// admin
	r.GET("/admin/debug/prometheus", metrics.Handler())
	r.POST("/admin/jobs/purge", s.purge)

	r.NotFound(func(ctx *fasthttp.RequestCtx) {
		router.WriteJSONError(ctx, fasthttp.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(ctx *fasthttp.RequestCtx) {
		router.WriteJSONError(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
	})
}

// Handler returns the fasthttp handler for the store API.
func Handler(d Deps) fasthttp.RequestHandler {
	r := router.New()
	RegisterRoutes(r, d)
	return r.Handler
}
