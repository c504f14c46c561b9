package otelz

import (
	"context"
	"net/http"
	"sync/atomic"
)

// bundleKeyType is a private type for context keys to avoid collisions.
type bundleKeyType string

const (
	bundleKey bundleKeyType = "otelz"
)

// contextBundle holds both tracer and span key to reduce context allocations.
type contextBundle struct {
	tracer *Tracer
	key    SpanKey
}

// ActiveSpan is the live handle for a span started through a Tracer.
// It forwards every operation to the SDK under the span's key and
// absorbs use-after-finish instead of escalating it.
// Safe for concurrent use by multiple goroutines, except that Finish
// must not race the other methods.
type ActiveSpan struct {
	tracer   *Tracer
	key      SpanKey
	finished atomic.Bool
}

// SetTag records a single key-value pair on the span.
// No-op if the span is already finished.
func (a *ActiveSpan) SetTag(key Tag, value string) {
	if a.finished.Load() {
		return
	}
	a.tracer.sdk.OnSpanRecord(a.key, map[Tag]string{key: value})
}

// GetTag retrieves a tag value by key.
// Returns false once the span has finished.
func (a *ActiveSpan) GetTag(key Tag) (string, bool) {
	rec, ok := a.tracer.sdk.Snapshot(a.key)
	if !ok {
		return "", false
	}
	value, ok := rec.Attributes[key]
	return value, ok
}

// Record merges a batch of attributes into the span, later values
// winning per key.
// No-op if the span is already finished.
func (a *ActiveSpan) Record(attrs map[Tag]string) {
	if a.finished.Load() {
		return
	}
	a.tracer.sdk.OnSpanRecord(a.key, attrs)
}

// Event reports a point-in-time occurrence against this span. How it
// leaves the process depends on the SDK's export mode.
// No-op if the span is already finished.
func (a *ActiveSpan) Event(name Key, attrs map[Tag]string) {
	if a.finished.Load() {
		return
	}
	a.tracer.sdk.OnEvent(Event{Name: name, Attributes: attrs, Parent: a.key}, nil)
}

// SetRemoteParent re-parents this span onto the identity carried by an
// inbound propagation token, typically before any child spans start.
// A malformed token leaves the span untouched.
// No-op if the span is already finished.
func (a *ActiveSpan) SetRemoteParent(token string) {
	if a.finished.Load() {
		return
	}
	a.tracer.sdk.SetRemoteParent(a.key, token)
}

// Token serializes this span's identity for hand-off to another
// process. Returns "" once the span has finished.
func (a *ActiveSpan) Token() string {
	rec, ok := a.tracer.sdk.Snapshot(a.key)
	if !ok {
		return ""
	}
	return EncodeToken(rec)
}

// Inject writes this span's propagation token into an outbound header
// set. No-op once the span has finished.
func (a *ActiveSpan) Inject(h http.Header) {
	if token := a.Token(); token != "" {
		h.Set(HeaderKey, token)
	}
}

// TraceID returns the trace this span belongs to.
// Returns the zero TraceID once the span has finished.
func (a *ActiveSpan) TraceID() TraceID {
	rec, _ := a.tracer.sdk.Snapshot(a.key)
	return rec.TraceID
}

// SpanID returns this span's identifier.
// Returns the zero SpanID once the span has finished.
func (a *ActiveSpan) SpanID() SpanID {
	rec, _ := a.tracer.sdk.Snapshot(a.key)
	return rec.SpanID
}

// Recording reports whether this span's trace was sampled.
// Returns false once the span has finished.
func (a *ActiveSpan) Recording() bool {
	rec, _ := a.tracer.sdk.Snapshot(a.key)
	return rec.Recording
}

// Key returns the SDK key this span is registered under.
func (a *ActiveSpan) Key() SpanKey {
	return a.key
}

// Finish completes the span: it leaves the active table, gets its end
// time stamped, and is exported if its trace was sampled.
// Safe to call multiple times - subsequent calls are no-ops.
func (a *ActiveSpan) Finish() {
	if !a.finished.CompareAndSwap(false, true) {
		return
	}
	a.tracer.sdk.OnSpanClose(a.key)
}

// Context creates a new context with this span embedded.
// The returned context can be used to start child spans.
func (a *ActiveSpan) Context(parent context.Context) context.Context {
	bundle := &contextBundle{tracer: a.tracer, key: a.key}
	return context.WithValue(parent, bundleKey, bundle)
}

// KeyFromContext extracts the current span's key from a context.
// Returns false if no span is present.
func KeyFromContext(ctx context.Context) (SpanKey, bool) {
	if ctx == nil {
		return 0, false
	}

	if bundle, ok := ctx.Value(bundleKey).(*contextBundle); ok {
		return bundle.key, true
	}

	return 0, false
}
