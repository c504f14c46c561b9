package otelz

// ExportMode selects how events reported against spans leave the
// process.
type ExportMode int

const (
	// ModeSpanEvent attaches each event to its span. Events travel
	// with the span when it closes, so events on unsampled traces are
	// discarded with the span.
	ModeSpanEvent ExportMode = iota

	// ModeLogRecord exports each event immediately as a standalone
	// log record stamped with the span's identity. Log records ship
	// even when the trace is unsampled.
	ModeLogRecord
)

// Event is a point-in-time occurrence reported against a span. Parent
// names the target span's key explicitly; a zero Parent defers to the
// caller-supplied resolver.
type Event struct {
	Attributes map[Tag]string
	Name       Key
	Parent     SpanKey
}

// OnEvent routes an event to the span it describes. The target is
// ev.Parent when set, otherwise whatever current resolves to. Events
// with no resolvable target, or whose target span has already closed,
// are dropped without error: events race span shutdown by nature, and
// a late event is not a bug.
func (s *SDK) OnEvent(ev Event, current CurrentFunc) {
	key := ev.Parent
	if key == 0 {
		if current == nil {
			return
		}
		k, ok := current()
		if !ok {
			return
		}
		key = k
	}

	now := s.clock.Now()
	sh := s.shard(key)

	if s.mode == ModeLogRecord {
		sh.mu.RLock()
		rec, ok := sh.records[key]
		if !ok {
			sh.mu.RUnlock()
			return
		}
		lr := LogRecord{
			Attributes: copyAttrs(ev.Attributes),
			Time:       now,
			Name:       ev.Name,
			TraceID:    rec.TraceID,
			SpanID:     rec.SpanID,
		}
		sh.mu.RUnlock()

		s.exportLog(lr)
		return
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[key]
	if !ok || !rec.Recording {
		return
	}
	rec.Events = append(rec.Events, SpanEvent{
		Attributes: copyAttrs(ev.Attributes),
		Time:       now,
		Name:       ev.Name,
	})
}
