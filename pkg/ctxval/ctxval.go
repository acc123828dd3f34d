// Package ctxval holds request-scoped values that are filled in after the
// request context was created, such as the request id and log fields added
// by the auth middleware.
package ctxval

import (
	"context"
	"sync"
)

type scopeKey struct{}

type scope struct {
	mu        sync.RWMutex
	requestID string
	fields    []any
}

// Wrap attaches a scope to ctx. Wrapping twice returns ctx unchanged, so
// values set through either context stay visible to both.
func Wrap(ctx context.Context) context.Context {
	if _, ok := from(ctx); ok {
		return ctx
	}
	return context.WithValue(ctx, scopeKey{}, &scope{})
}

func from(ctx context.Context) (*scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(*scope)
	return s, ok
}

// SetRequestID is a no-op on an unwrapped context.
func SetRequestID(ctx context.Context, id string) {
	s, ok := from(ctx)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestID = id
}

func RequestID(ctx context.Context) string {
	s, ok := from(ctx)
	if !ok {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requestID
}

// AddFields stores key/value pairs for logging. A key that is already
// present gets its value replaced in place.
func AddFields(ctx context.Context, kv ...any) {
	s, ok := from(ctx)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i+1 < len(kv); i += 2 {
		s.fields = setField(s.fields, kv[i], kv[i+1])
	}
}

func setField(fields []any, key, value any) []any {
	for i := 0; i+1 < len(fields); i += 2 {
		if fields[i] == key {
			fields[i+1] = value
			return fields
		}
	}
	return append(fields, key, value)
}

// Fields returns a copy of the stored key/value pairs.
func Fields(ctx context.Context) []any {
	s, ok := from(ctx)
	if !ok {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.fields) == 0 {
		return nil
	}
	return append([]any(nil), s.fields...)
}
