package app

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"

	"communitychat/pkg/api"
	"communitychat/pkg/auth"
	"communitychat/pkg/config/banner"
	"communitychat/pkg/logger"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "" && a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}

func (a *App) handler() fasthttp.RequestHandler {
	cfg := a.eff.Config
	h := api.Handler(api.Deps{
		DB:           a.store,
		MaxWatchWait: cfg.Server.MaxWatchWait.Duration(),
		Ready:        a.ready.Load,
		Purge: func(ctx context.Context) (any, error) {
			return a.retention.RunImmediate(ctx)
		},
	})
	return auth.AuthenticateRequestMiddlewareFast(auth.FromConfig(cfg))(h)
}

// startHTTP builds and starts the fasthttp server, returning a channel that
// delivers serve errors.
func (a *App) startHTTP() (<-chan error, error) {
	cfg := a.eff.Config
	const (
		readBufferSize       = 64 * 1024
		readTimeout          = 10 * time.Second
		idleTimeout          = 30 * time.Second
		maxKeepaliveDuration = 2 * time.Minute
	)
	// long-polls hold the response for up to MaxWatchWait
	writeTimeout := cfg.Server.MaxWatchWait.Duration() + 10*time.Second
	a.srvFast = &fasthttp.Server{
		Name:                 "communitychat",
		Handler:              a.handler(),
		ReadBufferSize:       readBufferSize,
		MaxRequestBodySize:   int(cfg.Server.MaxBodySize.Int64()),
		ReadTimeout:          readTimeout,
		WriteTimeout:         writeTimeout,
		IdleTimeout:          idleTimeout,
		MaxKeepaliveDuration: maxKeepaliveDuration,
	}

	ln, err := a.listen(a.eff.Addr)
	if err != nil {
		return nil, err
	}
	a.addrCh <- ln.Addr()
	logger.Info("http_listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.srvFast.Serve(ln)
	}()
	return errCh, nil
}
