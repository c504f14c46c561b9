package otelz

import "time"

// SpanKey is the opaque per-span key assigned by the host framework.
// It identifies the storage slot for one live span; it is not the
// span's identity on the wire (that is SpanID). Zero is reserved to
// mean "no key".
type SpanKey uint64

// SpanRecord is the SDK's representation of one span. A record lives in
// the active store from the start callback until the close callback;
// after close it is handed to the exporter as an immutable snapshot.
//
// TraceID, SpanID and Recording are fixed at creation (or by a single
// SetRemoteParent call immediately after) and never change again.
// Attributes and Events grow until close; a repeated attribute key is
// last-write-wins.
type SpanRecord struct {
	Attributes   map[Tag]string `json:"attributes,omitempty"`
	Events       []SpanEvent    `json:"events,omitempty"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      time.Time      `json:"end_time,omitempty"`
	Name         Key            `json:"name"`
	TraceID      TraceID        `json:"trace_id"`
	SpanID       SpanID         `json:"span_id"`
	ParentSpanID SpanID         `json:"parent_span_id,omitempty"`
	Recording    bool           `json:"recording"`
}

// Root reports whether the span has no parent, local or remote.
func (r *SpanRecord) Root() bool {
	return r.ParentSpanID.IsZero()
}

// snapshot returns a deep copy of the record. The copy shares no maps
// or slices with the original, so the receiver may hold it across the
// export hand-off without racing live mutation.
func (r *SpanRecord) snapshot() SpanRecord {
	out := *r
	out.Attributes = copyAttrs(r.Attributes)
	if r.Events != nil {
		out.Events = make([]SpanEvent, len(r.Events))
		for i := range r.Events {
			out.Events[i] = r.Events[i]
			out.Events[i].Attributes = copyAttrs(r.Events[i].Attributes)
		}
	}
	return out
}

// SpanEvent is a timestamped annotation attached to a span's export
// representation.
type SpanEvent struct {
	Attributes map[Tag]string `json:"attributes,omitempty"`
	Time       time.Time      `json:"time"`
	Name       Key            `json:"name"`
}

// LogRecord is a standalone observability record, correlated to a span
// by span ID but not embedded in it. Log records are emitted even for
// unsampled spans; sampling gates span export, not logging.
type LogRecord struct {
	Attributes map[Tag]string `json:"attributes,omitempty"`
	Time       time.Time      `json:"time"`
	Name       Key            `json:"name"`
	TraceID    TraceID        `json:"trace_id"`
	SpanID     SpanID         `json:"span_id"`
}

func copyAttrs(attrs map[Tag]string) map[Tag]string {
	if attrs == nil {
		return nil
	}
	out := make(map[Tag]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
