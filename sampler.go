package otelz

import (
	"hash/fnv"

	"golang.org/x/time/rate"
)

// Sampler decides, once per trace, whether the trace is kept for
// export. Only the root span of a trace consults the sampler; every
// descendant - local or remote - inherits the root's decision
// unchanged, because a partially sampled trace cannot be reassembled
// by a backend.
//
// Samplers are called concurrently from many span-creation sites; a
// stateful implementation must supply its own synchronization.
type Sampler interface {
	ShouldSample(id TraceID) bool
}

// AlwaysSample returns the default policy: keep every trace.
func AlwaysSample() Sampler { return alwaysSampler{} }

// NeverSample returns a policy that drops every trace. Spans still run
// their full lifecycle; only export is suppressed.
func NeverSample() Sampler { return neverSampler{} }

type alwaysSampler struct{}

func (alwaysSampler) ShouldSample(TraceID) bool { return true }

type neverSampler struct{}

func (neverSampler) ShouldSample(TraceID) bool { return false }

// Probabilistic sampling hashes the trace ID into a fixed bucket space
// and keeps the trace when its bucket falls under the scaled fraction.
// The same trace ID always lands in the same bucket, so the decision is
// deterministic per trace no matter which process makes it.
const (
	numSamplingBuckets = 0x4000
	samplingBucketMask = numSamplingBuckets - 1
)

type ratioSampler struct {
	threshold uint32
}

// TraceIDRatio returns a sampler that keeps approximately the given
// fraction of traces, chosen deterministically by trace ID. Fractions
// outside [0, 1] are clamped.
func TraceIDRatio(fraction float64) Sampler {
	if fraction <= 0 {
		return neverSampler{}
	}
	if fraction >= 1 {
		return alwaysSampler{}
	}
	return ratioSampler{threshold: uint32(fraction * numSamplingBuckets)}
}

func (s ratioSampler) ShouldSample(id TraceID) bool {
	h := fnv.New32a()
	_, _ = h.Write(id[:])
	return h.Sum32()&samplingBucketMask < s.threshold
}

type rateLimitedSampler struct {
	limiter *rate.Limiter
}

// RateLimited returns a sampler that admits at most limit new traces
// per second with the given burst. The limiter is internally
// synchronized, so the sampler is safe under concurrent root-span
// creation. Unlike TraceIDRatio the decision is not a function of the
// trace ID; it still applies to the whole trace because descendants
// never re-sample.
func RateLimited(limit rate.Limit, burst int) Sampler {
	return rateLimitedSampler{limiter: rate.NewLimiter(limit, burst)}
}

func (s rateLimitedSampler) ShouldSample(TraceID) bool {
	return s.limiter.Allow()
}
