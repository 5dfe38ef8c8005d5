package logger

import (
	"context"
	"sync"
)

type attrsKey struct{}

type requestAttrs struct {
	mu    sync.Mutex
	attrs []any
}

// WithRequestAttrs returns a context that collects attributes for the
// request log line. Handlers further down the chain add to it with AddAttrs.
func WithRequestAttrs(ctx context.Context) context.Context {
	return context.WithValue(ctx, attrsKey{}, &requestAttrs{})
}

// AddAttrs appends key/value pairs to the request log line. It does nothing
// when ctx carries no collector.
func AddAttrs(ctx context.Context, args ...any) {
	ra, ok := ctx.Value(attrsKey{}).(*requestAttrs)
	if !ok {
		return
	}
	ra.mu.Lock()
	ra.attrs = append(ra.attrs, args...)
	ra.mu.Unlock()
}

func RequestAttrs(ctx context.Context) []any {
	ra, ok := ctx.Value(attrsKey{}).(*requestAttrs)
	if !ok {
		return nil
	}
	ra.mu.Lock()
	defer ra.mu.Unlock()
	return append([]any(nil), ra.attrs...)
}
