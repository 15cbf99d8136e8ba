package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"communitychat/pkg/logger"
)

// RemoteOptions tunes a RemoteDB. Zero values select the defaults.
type RemoteOptions struct {
	APIKey string
	// Timeout bounds every request except long-polls.
	Timeout time.Duration
	// Wait is how long the server may hold a long-poll open.
	Wait time.Duration
	// Retry is the pause after a failed long-poll.
	Retry time.Duration
}

// StatusError is a non-success response from the store service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("store service: status %d: %s", e.Code, e.Message)
}

// RemoteDB implements Database against the store service HTTP API. OnValue
// is served by a long-poll loop per listener.
type RemoteDB struct {
	base   string
	opts   RemoteOptions
	client *fasthttp.Client

	mu     sync.Mutex
	closed bool
	stops  map[uint64]chan struct{}
	nextID uint64
}

// NewRemote returns a client for the service at baseURL (http://host:port).
func NewRemote(baseURL string, opts RemoteOptions) (*RemoteDB, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("remote store url must be http(s): %q", baseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Wait <= 0 {
		opts.Wait = 25 * time.Second
	}
	if opts.Retry <= 0 {
		opts.Retry = 2 * time.Second
	}
	return &RemoteDB{
		base: base,
		opts: opts,
		client: &fasthttp.Client{
			Name:                "communitychat-remote",
			MaxIdleConnDuration: time.Minute,
			ReadTimeout:         opts.Wait + opts.Timeout,
			WriteTimeout:        opts.Timeout,
		},
		stops: make(map[uint64]chan struct{}),
	}, nil
}

func (r *RemoteDB) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// do sends one request and decodes a JSON body into out when non-nil.
func (r *RemoteDB) do(ctx context.Context, method, uri string, body any, timeout time.Duration, out any) (int, error) {
	if r.isClosed() {
		return 0, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if r.opts.APIKey != "" {
		req.Header.Set("X-API-Key", r.opts.APIKey)
	}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(b)
	}

	if err := r.client.DoTimeout(req, resp, timeout); err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, uri, err)
	}
	code := resp.StatusCode()
	if code >= 300 {
		var eb struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(resp.Body(), &eb)
		if eb.Error == "" {
			eb.Error = strings.TrimSpace(string(resp.Body()))
		}
		if code == fasthttp.StatusNotFound {
			return code, fmt.Errorf("%w: %s", ErrNotFound, eb.Error)
		}
		return code, &StatusError{Code: code, Message: eb.Error}
	}
	if out != nil && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return code, fmt.Errorf("decode response: %w", err)
		}
	}
	return code, nil
}

func (r *RemoteDB) dbURI(path string) string   { return r.base + "/v1/db/" + path }
func (r *RemoteDB) watchURI(path string) string { return r.base + "/v1/watch/" + path }

func (r *RemoteDB) Push(ctx context.Context, path string, value map[string]any) (string, error) {
	p, err := CleanPath(path)
	if err != nil {
		return "", err
	}
	if len(value) == 0 {
		return "", ErrEmptyValue
	}
	var out struct {
		Key string `json:"key"`
	}
	if _, err := r.do(ctx, fasthttp.MethodPost, r.dbURI(p), value, r.opts.Timeout, &out); err != nil {
		return "", err
	}
	if out.Key == "" {
		return "", errors.New("store service returned no key")
	}
	return out.Key, nil
}

func (r *RemoteDB) Update(ctx context.Context, path string, fields map[string]any) error {
	p, err := CleanPath(path)
	if err != nil {
		return err
	}
	_, err = r.do(ctx, fasthttp.MethodPatch, r.dbURI(p), fields, r.opts.Timeout, nil)
	return err
}

func (r *RemoteDB) Get(ctx context.Context, path string) (Snapshot, error) {
	p, err := CleanPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if _, err := r.do(ctx, fasthttp.MethodGet, r.dbURI(p), nil, r.opts.Timeout, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// watch long-polls for a value newer than since.
func (r *RemoteDB) watch(ctx context.Context, path string, since uint64) (Snapshot, error) {
	uri := r.watchURI(path) + "?since=" + strconv.FormatUint(since, 10) + "&wait=" + r.opts.Wait.String()
	var snap Snapshot
	if _, err := r.do(ctx, fasthttp.MethodGet, uri, nil, r.opts.Wait+r.opts.Timeout, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (r *RemoteDB) OnValue(path string, fn func(Snapshot)) (Unsubscribe, error) {
	if fn == nil {
		return nil, errors.New("realtime: nil listener")
	}
	p, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.nextID++
	id := r.nextID
	stop := make(chan struct{})
	r.stops[id] = stop
	r.mu.Unlock()

	go r.pollLoop(p, fn, stop)

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			if ch, ok := r.stops[id]; ok {
				close(ch)
				delete(r.stops, id)
			}
			r.mu.Unlock()
		})
	}, nil
}

func (r *RemoteDB) pollLoop(path string, fn func(Snapshot), stop <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	var (
		since     uint64
		last      json.RawMessage
		delivered bool
	)
	for {
		var (
			snap Snapshot
			err  error
		)
		// the first read is immediate so a quiet path is still delivered
		if delivered {
			snap, err = r.watch(ctx, path, since)
		} else {
			snap, err = r.Get(ctx, path)
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return
			}
			logger.Warn("realtime_remote_watch_failed", "path", path, "error", err)
			select {
			case <-stop:
				return
			case <-time.After(r.opts.Retry):
			}
			continue
		}
		since = snap.Version
		if delivered && bytes.Equal(snap.Value, last) {
			continue
		}
		select {
		case <-stop:
			return
		default:
		}
		last, delivered = snap.Value, true
		fn(snap)
	}
}

// Close stops every listener. A long-poll already in flight is abandoned
// and its result discarded.
func (r *RemoteDB) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for id, ch := range r.stops {
		close(ch)
		delete(r.stops, id)
	}
	r.mu.Unlock()
	r.client.CloseIdleConnections()
	return nil
}
