// Package realtime defines the path-addressable real-time tree the chat core
// is built on, and the stores that implement it.
//
// The tree has two levels: a collection path ("communityChat/messages") whose
// children are JSON records addressed as "<collection>/<key>". Readers always
// receive the full value at a path, never deltas.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound    = errors.New("realtime: not found")
	ErrClosed      = errors.New("realtime: database closed")
	ErrInvalidPath = errors.New("realtime: invalid path")
	ErrEmptyValue  = errors.New("realtime: empty value")
)

// Unsubscribe deregisters a listener. Calling it more than once is safe.
type Unsubscribe func()

// Database is the contract between the chat core and the real-time store.
type Database interface {
	// Push stores value under a new unique, time-ordered key below path and
	// returns the key. ServerTimestamp values are resolved at commit.
	Push(ctx context.Context, path string, value map[string]any) (string, error)
	// Update merges top-level fields into the record at path. A missing
	// record yields ErrNotFound.
	Update(ctx context.Context, path string, fields map[string]any) error
	// Get reads the full current value at path.
	Get(ctx context.Context, path string) (Snapshot, error)
	// OnValue calls fn with the value at path right away and again after
	// every mutation under path. Delivery is asynchronous and coalesced: a
	// listener always sees the latest value, at least once.
	OnValue(path string, fn func(Snapshot)) (Unsubscribe, error)
}

// Snapshot is the value at a path at some store version.
type Snapshot struct {
	Path    string          `json:"path"`
	Version uint64          `json:"version"`
	Value   json.RawMessage `json:"value"`
}

// Exists reports whether anything is stored at the path.
func (s Snapshot) Exists() bool {
	v := strings.TrimSpace(string(s.Value))
	return v != "" && v != "null"
}

// Decode unmarshals the value into v.
func (s Snapshot) Decode(v any) error {
	if !s.Exists() {
		return ErrNotFound
	}
	return json.Unmarshal(s.Value, v)
}

// Children splits a collection value into its records. A missing value has
// no children.
func (s Snapshot) Children() (map[string]json.RawMessage, error) {
	out := map[string]json.RawMessage{}
	if !s.Exists() {
		return out, nil
	}
	if err := json.Unmarshal(s.Value, &out); err != nil {
		return nil, fmt.Errorf("decode children of %s: %w", s.Path, err)
	}
	return out, nil
}

const (
	sentinelKey       = ".sv"
	sentinelTimestamp = "timestamp"
)

type serverValue struct {
	SV string `json:".sv"`
}

// ServerTimestamp is replaced by the store's commit time (unix ms) when it
// appears as a top-level field value. It encodes as {".sv":"timestamp"}.
var ServerTimestamp = serverValue{SV: sentinelTimestamp}

func isServerTimestamp(v any) bool {
	switch t := v.(type) {
	case serverValue:
		return t.SV == sentinelTimestamp
	case *serverValue:
		return t != nil && t.SV == sentinelTimestamp
	case map[string]any:
		s, ok := t[sentinelKey].(string)
		return ok && len(t) == 1 && s == sentinelTimestamp
	}
	return false
}

// resolve copies fields, replacing server timestamp sentinels with ts.
func resolve(fields map[string]any, ts func() int64) map[string]any {
	out := make(map[string]any, len(fields))
	var now int64
	stamped := false
	for k, v := range fields {
		if isServerTimestamp(v) {
			if !stamped {
				now = ts()
				stamped = true
			}
			out[k] = now
			continue
		}
		out[k] = v
	}
	return out
}

// CleanPath normalises p and rejects empty or reserved segments.
func CleanPath(p string) (string, error) {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	segs := strings.Split(p, "/")
	for _, s := range segs {
		if s == "" || s == "." || s == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
		if strings.ContainsAny(s, ".#$[]\x00") {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	return strings.Join(segs, "/"), nil
}

// Join builds a path from segments.
func Join(parts ...string) string {
	trimmed := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			trimmed = append(trimmed, p)
		}
	}
	return strings.Join(trimmed, "/")
}

// split returns the collection and key of a clean record path. The
// collection is empty for single segment paths.
func split(p string) (string, string) {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}

// covers reports whether a mutation at changed is visible from watched.
func covers(watched, changed string) bool {
	return changed == watched || strings.HasPrefix(changed, watched+"/")
}
