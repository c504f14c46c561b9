// Package otelz is a minimal distributed-tracing SDK core.
//
// otelz sits between an instrumentation layer and an export backend. It
// owns the hard part of a tracing SDK: identity generation, parent
// linkage (local and remote), a trace-wide sampling decision, a compact
// cross-process propagation token, and the routing of per-span events.
// It deliberately stops at the export hand-off - no batching, no wire
// protocol, no transmission.
//
// Core Components:
//   - SDK: the span-lifecycle hook adapter driven by a host framework.
//   - Tracer / ActiveSpan: an in-process facade that drives the SDK and
//     links spans through context.Context.
//   - Sampler: the once-per-trace keep/drop decision.
//   - Collector: a buffering Exporter for finished spans and log records.
//
// Basic Usage:
//
//	collector := otelz.NewCollector("backend", 1024)
//	sdk := otelz.New(otelz.WithExporter(collector))
//	tracer := otelz.NewTracer(sdk)
//
//	ctx, span := tracer.StartSpan(ctx, "handle-request", nil)
//	defer span.Finish()
//
//	span.SetTag("user.id", "123")
//
//	// Child spans inherit trace identity and the sampling decision.
//	_, child := tracer.StartSpan(ctx, "db-query", nil)
//	defer child.Finish()
//
// Cross-Process Propagation:
//
// A span's identity travels as a four-field token in the HeaderKey
// request header. Inject on the client, then adopt on the server:
//
//	span.Inject(req.Header)                             // client
//	span.SetRemoteParent(r.Header.Get(otelz.HeaderKey)) // server, before children
//
// Malformed inbound tokens never fail a request; the receiving span
// simply stays a disconnected root.
//
// Thread Safety:
//
// SDK and Tracer are safe for concurrent use by multiple goroutines.
// The host contract requires at most one lifecycle callback in flight
// per span key; ActiveSpan enforces it for facade users. Sampling
// decisions are made once per trace, at the root, and inherited by
// every descendant so a trace is never partially sampled.
package otelz

// Key represents a span or event operation name.
type Key = string

// Tag represents a span attribute key.
type Tag = string
