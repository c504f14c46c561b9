package otelz

import (
	"fmt"
	"sync"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// numRecordShards spreads active spans over independent locks.
// Must be a power of two.
const numRecordShards = 16

// recordShard holds a slice of the active-span table under its own lock.
type recordShard struct {
	records map[SpanKey]*SpanRecord
	mu      sync.RWMutex
}

// ParentFunc resolves the key of the span that should become the parent
// of a span being started. Returning false means "no parent": the new
// span starts a fresh trace.
type ParentFunc func() (SpanKey, bool)

// CurrentFunc resolves the key of the currently active span for events
// that carry no explicit parent. Returning false drops the event.
type CurrentFunc func() (SpanKey, bool)

// SDK tracks every live span by its host-assigned key and applies the
// lifecycle callbacks: start, record, close, remote-parent adoption,
// and event routing. The host owns keys and promises at most one
// in-flight callback per key; the SDK owns everything else.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for readability over memory
type SDK struct {
	shards   [numRecordShards]recordShard
	ids      IDGenerator
	sampler  Sampler
	exporter Exporter
	clock    clockz.Clock
	log      *zap.Logger
	mode     ExportMode
}

// Option configures an SDK at construction time.
type Option func(*SDK)

// WithSampler sets the root-span sampling policy.
// The default samples every trace.
func WithSampler(sampler Sampler) Option {
	return func(s *SDK) {
		if sampler != nil {
			s.sampler = sampler
		}
	}
}

// WithExporter sets the destination for finished spans and log records.
// Without an exporter, finished spans are discarded after the close
// diagnostic.
func WithExporter(exporter Exporter) Option {
	return func(s *SDK) {
		s.exporter = exporter
	}
}

// WithExportMode selects how events attached to spans leave the
// process. The default is ModeSpanEvent.
func WithExportMode(mode ExportMode) Option {
	return func(s *SDK) {
		s.mode = mode
	}
}

// WithClock sets the time source.
// Enables clock injection for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(s *SDK) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator sets the identifier source for new traces and spans.
func WithIDGenerator(gen IDGenerator) Option {
	return func(s *SDK) {
		if gen != nil {
			s.ids = gen
		}
	}
}

// WithLogger sets the diagnostic logger.
// The default logger discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(s *SDK) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates an SDK with production defaults: random identifiers,
// sample-everything policy, span-event routing, the real clock, and a
// no-op logger.
func New(opts ...Option) *SDK {
	s := &SDK{
		ids:     NewRandomIDGenerator(),
		sampler: AlwaysSample(),
		clock:   clockz.RealClock,
		log:     zap.NewNop(),
		mode:    ModeSpanEvent,
	}
	for i := range s.shards {
		s.shards[i].records = make(map[SpanKey]*SpanRecord)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SDK) shard(key SpanKey) *recordShard {
	return &s.shards[uint64(key)&(numRecordShards-1)]
}

// OnSpanStart registers a new span under key. If parent resolves to a
// live span, the new span joins that span's trace and inherits its
// sampling decision; otherwise it becomes the root of a fresh trace and
// the sampler decides. Starting a key that is already active is a
// protocol violation and panics.
func (s *SDK) OnSpanStart(key SpanKey, name Key, attrs map[Tag]string, parent ParentFunc) {
	rec := &SpanRecord{
		Name:       name,
		SpanID:     s.ids.NewSpanID(),
		StartTime:  s.clock.Now(),
		Attributes: copyAttrs(attrs),
	}

	// Resolve the parent before touching the new key's shard so the
	// two locks are never held together.
	linked := false
	if parent != nil {
		if pk, ok := parent(); ok {
			psh := s.shard(pk)
			psh.mu.RLock()
			if p, live := psh.records[pk]; live {
				rec.TraceID = p.TraceID
				rec.ParentSpanID = p.SpanID
				rec.Recording = p.Recording
				linked = true
			}
			psh.mu.RUnlock()
		}
	}
	if !linked {
		rec.TraceID = s.ids.NewTraceID()
		rec.Recording = s.sampler.ShouldSample(rec.TraceID)
	}

	sh := s.shard(key)
	sh.mu.Lock()
	if _, exists := sh.records[key]; exists {
		sh.mu.Unlock()
		panic(fmt.Sprintf("otelz: span key %d is already active", key))
	}
	sh.records[key] = rec
	sh.mu.Unlock()
}

// OnSpanRecord merges attrs into the span's attributes, later values
// overwriting earlier ones key by key. A key with no live record is
// ignored: the host may replay a record after the span closed, and a
// stale update must not fail anything.
func (s *SDK) OnSpanRecord(key SpanKey, attrs map[Tag]string) {
	if len(attrs) == 0 {
		return
	}

	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[key]
	if !ok {
		return
	}
	if rec.Attributes == nil {
		rec.Attributes = make(map[Tag]string, len(attrs))
	}
	for k, v := range attrs {
		rec.Attributes[k] = v
	}
}

// OnSpanClose removes the span from the active table, stamps its end
// time, emits the close diagnostic, and hands the span to the exporter
// if its trace was sampled. Closing a key that is not active is a
// protocol violation and panics.
func (s *SDK) OnSpanClose(key SpanKey) {
	sh := s.shard(key)
	sh.mu.Lock()
	rec, ok := sh.records[key]
	if !ok {
		sh.mu.Unlock()
		panic(fmt.Sprintf("otelz: span key %d is not active", key))
	}
	delete(sh.records, key)
	sh.mu.Unlock()

	// The record left the table above; this callback now owns it.
	rec.EndTime = s.clock.Now()

	s.log.Debug("span closed",
		zap.String("name", string(rec.Name)),
		zap.String("trace_id", rec.TraceID.String()),
		zap.String("span_id", rec.SpanID.String()),
		zap.Duration("duration", rec.EndTime.Sub(rec.StartTime)),
		zap.Bool("recording", rec.Recording),
		zap.Int("events", len(rec.Events)),
	)

	if rec.Recording {
		s.exportSpan(rec.snapshot())
	}
}

// SetRemoteParent re-parents the span under key onto the identity
// decoded from a propagation token: the span adopts the remote trace
// ID, parent span ID, and sampling decision. A token that decodes to
// nothing leaves the span untouched, so a corrupt inbound header
// quietly yields a disconnected root. Calling this for a key that is
// not active is a protocol violation and panics.
func (s *SDK) SetRemoteParent(key SpanKey, token string) {
	remote := DecodeToken(token)

	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[key]
	if !ok {
		panic(fmt.Sprintf("otelz: span key %d is not active", key))
	}
	if remote.TraceID.IsZero() {
		return
	}
	rec.TraceID = remote.TraceID
	rec.ParentSpanID = remote.SpanID
	rec.Recording = remote.Sampled
}

// Snapshot returns an independent copy of the live span under key.
// Returns false after the span closes.
func (s *SDK) Snapshot(key SpanKey) (SpanRecord, bool) {
	sh := s.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	rec, ok := sh.records[key]
	if !ok {
		return SpanRecord{}, false
	}
	return rec.snapshot(), true
}

// ActiveSpans returns the number of spans currently in the table.
// A host that closes every span it starts drives this back to zero.
func (s *SDK) ActiveSpans() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.records)
		sh.mu.RUnlock()
	}
	return n
}

// exportSpan hands a finished span to the exporter, isolating the SDK
// from exporter panics.
func (s *SDK) exportSpan(rec SpanRecord) {
	if s.exporter == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("span exporter panicked", zap.Any("panic", r))
		}
	}()
	s.exporter.ExportSpan(rec)
}

// exportLog hands a log record to the exporter, isolating the SDK from
// exporter panics.
func (s *SDK) exportLog(lr LogRecord) {
	if s.exporter == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("log exporter panicked", zap.Any("panic", r))
		}
	}()
	s.exporter.ExportLog(lr)
}
