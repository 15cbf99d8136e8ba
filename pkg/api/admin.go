package api

import (
	"github.com/valyala/fasthttp"

	"communitychat/pkg/auth"
	"communitychat/pkg/logger"
	"communitychat/pkg/router"
)

func (s *service) health(ctx *fasthttp.RequestCtx) {
	_ = router.WriteJSON(ctx, map[string]string{"status": "ok"})
}

func (s *service) ready(ctx *fasthttp.RequestCtx) {
	if s.Ready != nil && !s.Ready() {
		router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, "not ready")
		return
	}
	_ = router.WriteJSON(ctx, map[string]string{"status": "ready"})
}

func isAdmin(ctx *fasthttp.RequestCtx) bool {
	return string(ctx.Request.Header.Peek(auth.RoleHeader)) == auth.RoleAdmin.String()
}

// purge runs retention once and returns its report.
func (s *service) purge(ctx *fasthttp.RequestCtx) {
	if !isAdmin(ctx) {
		router.WriteJSONError(ctx, fasthttp.StatusForbidden, "admin key required")
		return
	}
	if s.Purge == nil {
		router.WriteJSONError(ctx, fasthttp.StatusNotImplemented, "retention not configured")
		return
	}
	rep, err := s.Purge(ctx)
	if err != nil {
		logger.Error("admin_purge_failed", "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("admin_purge_done")
	_ = router.WriteJSON(ctx, rep)
}
