package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"communitychat/pkg/logger"
	"communitychat/pkg/metrics"
	"communitychat/pkg/realtime"
	"communitychat/pkg/router"
)

func pathParam(ctx *fasthttp.RequestCtx) (string, bool) {
	raw, _ := ctx.UserValue("path").(string)
	p, err := realtime.CleanPath(raw)
	if err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, err.Error())
		return "", false
	}
	return p, true
}

// decodeObject reads a JSON object body. Numbers stay exact.
func decodeObject(ctx *fasthttp.RequestCtx) (map[string]any, bool) {
	body := ctx.PostBody()
	if len(body) == 0 {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "empty request payload")
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "request body must be a JSON object")
		return nil, false
	}
	return obj, true
}

// writeStoreError maps store errors to statuses.
func writeStoreError(ctx *fasthttp.RequestCtx, op string, err error) {
	status := fasthttp.StatusInternalServerError
	switch {
	case errors.Is(err, realtime.ErrNotFound):
		status = fasthttp.StatusNotFound
	case errors.Is(err, realtime.ErrInvalidPath), errors.Is(err, realtime.ErrEmptyValue):
		status = fasthttp.StatusBadRequest
	case errors.Is(err, realtime.ErrClosed):
		status = fasthttp.StatusServiceUnavailable
	}
	result := "error"
	if status < 500 {
		result = "rejected"
	} else {
		logger.Error("store_op_failed", "op", op, "path", string(ctx.Path()), "error", err)
	}
	metrics.StoreOps.WithLabelValues(op, result).Inc()
	router.WriteJSONError(ctx, status, err.Error())
}

func (s *service) push(ctx *fasthttp.RequestCtx) {
	p, ok := pathParam(ctx)
	if !ok {
		return
	}
	obj, ok := decodeObject(ctx)
	if !ok {
		return
	}
	key, err := s.DB.Push(ctx, p, obj)
	if err != nil {
		writeStoreError(ctx, "push", err)
		return
	}
	metrics.StoreOps.WithLabelValues("push", "ok").Inc()
	_ = router.WriteJSONStatus(ctx, fasthttp.StatusCreated, map[string]string{"key": key})
}

func (s *service) update(ctx *fasthttp.RequestCtx) {
	p, ok := pathParam(ctx)
	if !ok {
		return
	}
	obj, ok := decodeObject(ctx)
	if !ok {
		return
	}
	if err := s.DB.Update(ctx, p, obj); err != nil {
		writeStoreError(ctx, "update", err)
		return
	}
	metrics.StoreOps.WithLabelValues("update", "ok").Inc()
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *service) get(ctx *fasthttp.RequestCtx) {
	p, ok := pathParam(ctx)
	if !ok {
		return
	}
	snap, err := s.DB.Get(ctx, p)
	if err != nil {
		writeStoreError(ctx, "get", err)
		return
	}
	metrics.StoreOps.WithLabelValues("get", "ok").Inc()
	_ = router.WriteJSON(ctx, snap)
}

// watch holds the request until the value at path is newer than ?since or
// the wait elapses, then returns the current snapshot either way.
func (s *service) watch(ctx *fasthttp.RequestCtx) {
	p, ok := pathParam(ctx)
	if !ok {
		return
	}
	args := ctx.QueryArgs()
	var since uint64
	if raw := string(args.Peek("since")); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid since")
			return
		}
		since = v
	}
	wait := s.MaxWatchWait
	if raw := string(args.Peek("wait")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid wait")
			return
		}
		if d < wait {
			wait = d
		}
	}

	metrics.Watchers.Inc()
	defer metrics.Watchers.Dec()
	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	snap, err := realtime.WaitForChange(wctx, s.DB, p, since)
	if err != nil {
		writeStoreError(ctx, "watch", err)
		return
	}
	metrics.StoreOps.WithLabelValues("watch", "ok").Inc()
	_ = router.WriteJSON(ctx, snap)
}
