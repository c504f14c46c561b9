package otelz

import (
	"context"
	"sync/atomic"
)

// Tracer drives the SDK's lifecycle callbacks for in-process use. It
// mints a fresh key for every span it starts and threads parentage
// through context.Context, so callers never touch keys directly.
// Safe for concurrent use by multiple goroutines.
type Tracer struct {
	sdk     *SDK
	nextKey atomic.Uint64
}

// NewTracer wraps an SDK in a Tracer.
// A nil sdk gets an SDK with production defaults.
func NewTracer(sdk *SDK) *Tracer {
	if sdk == nil {
		sdk = New()
	}
	return &Tracer{sdk: sdk}
}

// SDK returns the underlying SDK.
func (t *Tracer) SDK() *SDK {
	return t.sdk
}

// StartSpan creates a new span and returns it wrapped in an ActiveSpan.
// If the context contains an existing span, the new span will be its
// child and inherit its trace and sampling decision; otherwise it roots
// a fresh trace. attrs may be nil.
func (t *Tracer) StartSpan(ctx context.Context, name Key, attrs map[Tag]string) (context.Context, *ActiveSpan) {
	// Handle nil context by creating a new one.
	if ctx == nil {
		ctx = context.Background()
	}

	key := SpanKey(t.nextKey.Add(1))
	t.sdk.OnSpanStart(key, name, attrs, func() (SpanKey, bool) {
		return KeyFromContext(ctx)
	})

	span := &ActiveSpan{tracer: t, key: key}

	// Bundle tracer and key in a single context value.
	bundle := &contextBundle{tracer: t, key: key}
	return context.WithValue(ctx, bundleKey, bundle), span
}

// Event reports an event against the current span in ctx. Events with
// no span in ctx, or whose span already finished, are dropped.
func (t *Tracer) Event(ctx context.Context, name Key, attrs map[Tag]string) {
	t.sdk.OnEvent(Event{Name: name, Attributes: attrs}, func() (SpanKey, bool) {
		return KeyFromContext(ctx)
	})
}
