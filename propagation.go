package otelz

import (
	"math/big"
	"strconv"
	"strings"
)

// HeaderKey is the transport header that carries the propagation token
// across process boundaries. An absent header means "no remote parent".
const HeaderKey = "uber-trace-id"

// maxTraceIDDigits bounds the decimal form of a 128-bit value.
const maxTraceIDDigits = 39

// SpanContext is the decoded identity carried by a propagation token:
// the trace the remote caller belongs to, the remote span that becomes
// the local parent, and the trace-wide sampling decision.
type SpanContext struct {
	TraceID TraceID
	SpanID  SpanID
	Sampled bool
}

// IsZero reports whether the context carries no identity, which is how
// a malformed or absent token decodes.
func (c SpanContext) IsZero() bool {
	return c.TraceID.IsZero() && c.SpanID.IsZero() && !c.Sampled
}

// EncodeToken serializes a span's identity and sampling decision as
// four colon-separated decimal fields:
//
//	trace_id:span_id:parent_span_id:sampled_flag
//
// parent_span_id is 0 for a root span and sampled_flag is 0 or 1.
// Encoding always succeeds and always produces exactly four fields.
func EncodeToken(r SpanRecord) string {
	var b strings.Builder
	b.WriteString(new(big.Int).SetBytes(r.TraceID[:]).String())
	b.WriteByte(':')
	b.WriteString(strconv.FormatUint(r.SpanID.uint64(), 10))
	b.WriteByte(':')
	b.WriteString(strconv.FormatUint(r.ParentSpanID.uint64(), 10))
	b.WriteByte(':')
	if r.Recording {
		b.WriteByte('1')
	} else {
		b.WriteByte('0')
	}
	return b.String()
}

// DecodeToken parses a propagation token received from an untrusted
// peer. The contract is deliberately lenient: anything other than
// exactly four non-negative decimal fields of legal width decodes to
// the zero SpanContext. Decode never fails, because one corrupt inbound
// header must not fail the request that carried it.
//
// Fields 0 and 1 become the local span's trace ID and parent span ID;
// field 3 carries the sampling decision; field 2, the sender's own
// parent, is validated but not consumed.
func DecodeToken(token string) SpanContext {
	fields := strings.Split(token, ":")
	if len(fields) != 4 {
		return SpanContext{}
	}

	traceID, ok := parseTraceID(fields[0])
	if !ok {
		return SpanContext{}
	}
	spanID, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return SpanContext{}
	}
	if _, err := strconv.ParseUint(fields[2], 10, 64); err != nil {
		return SpanContext{}
	}
	flags, err := strconv.ParseUint(fields[3], 10, 64)
	if err != nil {
		return SpanContext{}
	}

	return SpanContext{
		TraceID: traceID,
		SpanID:  spanIDFromUint64(spanID),
		Sampled: flags&1 == 1,
	}
}

// parseTraceID reads a decimal 128-bit value. Signs, blanks, and
// anything wider than 128 bits are rejected; strconv tops out at 64
// bits so the big path only runs for well-formed digit strings.
func parseTraceID(field string) (TraceID, bool) {
	if len(field) == 0 || len(field) > maxTraceIDDigits {
		return TraceID{}, false
	}
	for i := 0; i < len(field); i++ {
		if field[i] < '0' || field[i] > '9' {
			return TraceID{}, false
		}
	}

	v, ok := new(big.Int).SetString(field, 10)
	if !ok || v.BitLen() > 128 {
		return TraceID{}, false
	}

	var id TraceID
	v.FillBytes(id[:])
	return id, true
}
