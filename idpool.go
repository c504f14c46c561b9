package otelz

import (
	"sync"
)

// PooledIDGenerator wraps an IDGenerator with buffers of pre-generated
// identifiers to amortize generation cost away from span creation.
// Background goroutines keep the buffers topped up; under burst load an
// empty buffer falls through to the inner generator directly.
type PooledIDGenerator struct {
	inner    IDGenerator
	traceIDs chan TraceID
	spanIDs  chan SpanID
	stopCh   chan struct{}
	mu       sync.Mutex
	closed   bool
}

// NewPooledIDGenerator creates a pooled generator holding up to
// capacity identifiers of each kind. A nil inner defaults to the
// standard random generator.
func NewPooledIDGenerator(capacity int, inner IDGenerator) *PooledIDGenerator {
	if inner == nil {
		inner = NewRandomIDGenerator()
	}
	p := &PooledIDGenerator{
		inner:    inner,
		traceIDs: make(chan TraceID, capacity),
		spanIDs:  make(chan SpanID, capacity),
		stopCh:   make(chan struct{}),
	}
	// One refill goroutine per kind; each parks on its full buffer.
	go p.refillTraceIDs()
	go p.refillSpanIDs()
	return p
}

// NewTraceID retrieves a trace ID from the buffer or generates one if
// the buffer is empty.
func (p *PooledIDGenerator) NewTraceID() TraceID {
	select {
	case id := <-p.traceIDs:
		return id
	default:
		// Buffer empty, generate directly (fallback for burst load).
		return p.inner.NewTraceID()
	}
}

// NewSpanID retrieves a span ID from the buffer or generates one if the
// buffer is empty.
func (p *PooledIDGenerator) NewSpanID() SpanID {
	select {
	case id := <-p.spanIDs:
		return id
	default:
		// Buffer empty, generate directly (fallback for burst load).
		return p.inner.NewSpanID()
	}
}

func (p *PooledIDGenerator) refillTraceIDs() {
	for {
		select {
		case <-p.stopCh:
			return
		case p.traceIDs <- p.inner.NewTraceID():
			// Successfully buffered.
		}
	}
}

func (p *PooledIDGenerator) refillSpanIDs() {
	for {
		select {
		case <-p.stopCh:
			return
		case p.spanIDs <- p.inner.NewSpanID():
			// Successfully buffered.
		}
	}
}

// Close shuts down the refill goroutines gracefully.
func (p *PooledIDGenerator) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		close(p.stopCh)
		p.closed = true
	}
}
