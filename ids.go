package otelz

import (
	crand "crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"sync"
)

// TraceID is a 128-bit identifier shared by every span in a trace,
// including spans that originated in a remote process. The zero value
// means "no trace".
type TraceID [16]byte

// IsZero reports whether the trace ID is unset.
func (t TraceID) IsZero() bool {
	return t == TraceID{}
}

// String returns the trace ID as lowercase hex. This is the diagnostic
// form; the wire token uses decimal (see EncodeToken).
func (t TraceID) String() string {
	return hex.EncodeToString(t[:])
}

// SpanID is a 64-bit identifier unique to one span within its
// generating process. The zero value means "no span".
type SpanID [8]byte

// IsZero reports whether the span ID is unset.
func (s SpanID) IsZero() bool {
	return s == SpanID{}
}

// String returns the span ID as lowercase hex.
func (s SpanID) String() string {
	return hex.EncodeToString(s[:])
}

func (s SpanID) uint64() uint64 {
	return binary.BigEndian.Uint64(s[:])
}

func spanIDFromUint64(v uint64) SpanID {
	var s SpanID
	binary.BigEndian.PutUint64(s[:], v)
	return s
}

// IDGenerator produces trace and span identifiers. Implementations must
// be safe for concurrent use and must never block or fail; identity
// generation sits on the span-creation hot path.
type IDGenerator interface {
	NewTraceID() TraceID
	NewSpanID() SpanID
}

// RandomIDGenerator generates uniformly distributed identifiers from a
// pool of PCG generators, one per worker. Each generator is seeded
// exactly once from crypto/rand the first time a worker needs it, so
// steady-state generation takes no locks and never touches the entropy
// source again.
type RandomIDGenerator struct {
	pool sync.Pool
}

// NewRandomIDGenerator returns the default identifier generator.
// It panics if the entropy source cannot seed a generator; running
// without seeded randomness would void the uniqueness guarantees every
// downstream consumer depends on.
func NewRandomIDGenerator() *RandomIDGenerator {
	return &RandomIDGenerator{
		pool: sync.Pool{
			New: func() any { return seededRand() },
		},
	}
}

func seededRand() *rand.Rand {
	var seed [16]byte
	if _, err := crand.Read(seed[:]); err != nil {
		panic(fmt.Sprintf("otelz: seeding id generator: %v", err))
	}
	return rand.New(rand.NewPCG(
		binary.LittleEndian.Uint64(seed[:8]),
		binary.LittleEndian.Uint64(seed[8:]),
	))
}

// NewTraceID returns a fresh non-zero 128-bit trace ID.
func (g *RandomIDGenerator) NewTraceID() TraceID {
	rng := g.pool.Get().(*rand.Rand)
	defer g.pool.Put(rng)

	var id TraceID
	for id.IsZero() {
		binary.BigEndian.PutUint64(id[:8], rng.Uint64())
		binary.BigEndian.PutUint64(id[8:], rng.Uint64())
	}
	return id
}

// NewSpanID returns a fresh non-zero 64-bit span ID.
func (g *RandomIDGenerator) NewSpanID() SpanID {
	rng := g.pool.Get().(*rand.Rand)
	defer g.pool.Put(rng)

	var id SpanID
	for id.IsZero() {
		binary.BigEndian.PutUint64(id[:], rng.Uint64())
	}
	return id
}
