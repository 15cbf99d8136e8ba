package auth

import (
	"net"
	"strings"

	"github.com/valyala/fasthttp"

	"communitychat/pkg/logger"
	"communitychat/pkg/router"
)

// RoleHeader carries the resolved role to downstream handlers.
const RoleHeader = "X-Role-Name"

// AuthenticateRequestMiddlewareFast returns a middleware that applies CORS,
// the IP whitelist, API key roles and per-caller rate limits before next.
func AuthenticateRequestMiddlewareFast(cfg SecConfig) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	limiters := &limiterPool{cfg: cfg}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			logger.LogRequestFast(ctx)

			origin := string(ctx.Request.Header.Peek("Origin"))
			if origin != "" && originAllowed(origin, cfg.AllowedOrigins) {
				ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
				ctx.Response.Header.Set("Vary", "Origin")
				ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
				ctx.Response.Header.Set("Access-Control-Max-Age", "600")
				ctx.Response.Header.Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-API-Key")
			}
			if string(ctx.Method()) == fasthttp.MethodOptions {
				ctx.SetStatusCode(fasthttp.StatusNoContent)
				return
			}

			if len(cfg.IPWhitelist) > 0 {
				ip := clientIPFast(ctx)
				if !ipWhitelisted(ip, cfg.IPWhitelist) {
					router.WriteJSONError(ctx, fasthttp.StatusForbidden, "forbidden")
					logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", string(ctx.Path()))
					return
				}
			}

			// probes skip auth and limits
			if isProbe(ctx) {
				ctx.Request.Header.Set(RoleHeader, RoleUnauth.String())
				next(ctx)
				return
			}

			role, key, hasAPIKey := authenticateFast(ctx, cfg)
			logger.Debug("auth_check", "role", role.String(), "has_api_key", hasAPIKey)

			if role == RoleUnauth {
				router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, "unauthorized")
				logger.Warn("request_unauthorized", "path", string(ctx.Path()), "remote", ctx.RemoteAddr().String())
				return
			}
			ctx.Request.Header.Set(RoleHeader, role.String())

			if role == RoleFrontend && !frontendAllowedFast(ctx, cfg.StorePath) {
				router.WriteJSONError(ctx, fasthttp.StatusForbidden, "forbidden")
				logger.Warn("request_forbidden", "reason", "frontend_not_allowed", "path", string(ctx.Path()))
				return
			}

			if !limiters.Allow(key) {
				router.WriteJSONError(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded")
				logger.Warn("rate_limited", "has_api_key", hasAPIKey, "path", string(ctx.Path()))
				return
			}

			logger.Debug("request_allowed", "method", string(ctx.Method()), "path", string(ctx.Path()), "role", role.String())
			next(ctx)
		}
	}
}

func isProbe(ctx *fasthttp.RequestCtx) bool {
	p := string(ctx.Path())
	return (p == "/healthz" || p == "/readyz") && string(ctx.Method()) == fasthttp.MethodGet
}

func clientIPFast(ctx *fasthttp.RequestCtx) string {
	host := ctx.RemoteAddr().String()
	h, _, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	return h
}

// authenticateFast resolves the caller role and the rate limit key.
func authenticateFast(ctx *fasthttp.RequestCtx, cfg SecConfig) (Role, string, bool) {
	auth := string(ctx.Request.Header.Peek("Authorization"))
	var key string
	if len(auth) > 7 && strings.ToLower(auth[:7]) == "bearer " {
		key = strings.TrimSpace(auth[7:])
	}
	if key == "" {
		key = string(ctx.Request.Header.Peek("X-API-Key"))
	}
	if key == "" {
		if cfg.Open() {
			return RoleFrontend, clientIPFast(ctx), false
		}
		return RoleUnauth, clientIPFast(ctx), false
	}
	if _, ok := cfg.AdminKeys[key]; ok {
		return RoleAdmin, key, true
	}
	if _, ok := cfg.FrontendKeys[key]; ok {
		return RoleFrontend, key, true
	}
	if cfg.Open() {
		// unknown keys in open mode are treated like keyless callers
		return RoleFrontend, clientIPFast(ctx), true
	}
	return RoleUnauth, key, true
}

// frontendAllowedFast limits frontend callers to the chat collection.
func frontendAllowedFast(ctx *fasthttp.RequestCtx, storePath string) bool {
	path := string(ctx.Path())
	for _, prefix := range []string{"/v1/db/", "/v1/watch/"} {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		rest := strings.TrimPrefix(path, prefix)
		return rest == storePath || strings.HasPrefix(rest, storePath+"/")
	}
	return false
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func ipWhitelisted(ip string, list []string) bool {
	for _, w := range list {
		if ip == w {
			return true
		}
	}
	return false
}
