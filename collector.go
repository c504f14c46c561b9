package otelz

import (
	"sync"
	"sync/atomic"
	"time"
)

// Exporter receives telemetry leaving the SDK: finished spans from
// sampled traces and standalone log records. Implementations must not
// retain the arguments past the call.
type Exporter interface {
	ExportSpan(SpanRecord)
	ExportLog(LogRecord)
}

// exportItem carries one span or one log record through the collector
// channel.
type exportItem struct {
	span *SpanRecord
	log  *LogRecord
}

// Collector buffers exported spans and log records for batch delivery.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	spans        []SpanRecord
	logs         []LogRecord
	itemsCh      chan exportItem
	stopCh       chan struct{}
	done         chan struct{}
	droppedCount atomic.Int64
	name         string
	mu           sync.Mutex
	closed       atomic.Bool // Track if collector is closed.
	syncMode     bool        // Bypass channel for synchronous collection.
}

// defaultCollectorBuffer is used when NewCollector gets a non-positive
// buffer size.
const defaultCollectorBuffer = 1024

// NewCollector creates a collector with the specified name and channel
// buffer size and starts its receive loop.
func NewCollector(name string, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = defaultCollectorBuffer
	}
	c := &Collector{
		name:    name,
		spans:   make([]SpanRecord, 0, 8), // Start with small capacity.
		logs:    make([]LogRecord, 0, 8),
		itemsCh: make(chan exportItem, bufferSize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.start()
	return c
}

// start runs the collector's main loop, receiving items from the channel.
func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining items before shutdown.
			for {
				select {
				case item := <-c.itemsCh:
					c.buffer(item)
				default:
					return // Clean shutdown.
				}
			}
		case item := <-c.itemsCh:
			c.buffer(item)
		}
	}
}

// ExportSpan buffers a finished span with backpressure protection.
// If the internal channel is full, the span is dropped and the drop
// counter is incremented.
func (c *Collector) ExportSpan(rec SpanRecord) {
	// Deep copy so callers cannot mutate buffered state.
	rec = rec.snapshot()
	c.offer(exportItem{span: &rec})
}

// ExportLog buffers a standalone log record with the same backpressure
// behavior as ExportSpan.
func (c *Collector) ExportLog(lr LogRecord) {
	lr.Attributes = copyAttrs(lr.Attributes)
	c.offer(exportItem{log: &lr})
}

// offer queues an item, or collects it directly in sync mode.
// In sync mode items are buffered inline for deterministic testing.
func (c *Collector) offer(item exportItem) {
	if c.syncMode {
		if c.closed.Load() {
			c.droppedCount.Add(1)
			return
		}
		c.buffer(item)
		return
	}

	select {
	case c.itemsCh <- item:
		// Successfully queued.
	default:
		// Channel full - drop to prevent blocking.
		c.droppedCount.Add(1)
	}
}

// buffer appends an item to the matching internal buffer.
func (c *Collector) buffer(item exportItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item.span != nil {
		c.spans = append(c.spans, *item.span)
	}
	if item.log != nil {
		c.logs = append(c.logs, *item.log)
	}
}

// Export returns a copy of all buffered spans and clears the span
// buffer. The returned slice is safe to modify without affecting the
// collector.
func (c *Collector) Export() []SpanRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.spans) == 0 {
		return nil
	}

	result := make([]SpanRecord, len(c.spans))
	for i := range c.spans {
		result[i] = c.spans[i].snapshot()
	}

	// Only shrink if the buffer is very oversized to avoid allocation churn.
	if cap(c.spans) > 256 && len(c.spans) < cap(c.spans)/8 {
		newCap := cap(c.spans) / 4
		if newCap < 32 {
			newCap = 32
		}
		c.spans = make([]SpanRecord, 0, newCap)
	} else {
		c.spans = c.spans[:0] // Keep capacity, reset length.
	}

	return result
}

// Logs returns a copy of all buffered log records and clears the log
// buffer.
func (c *Collector) Logs() []LogRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.logs) == 0 {
		return nil
	}

	result := make([]LogRecord, len(c.logs))
	for i := range c.logs {
		result[i] = c.logs[i]
		result[i].Attributes = copyAttrs(c.logs[i].Attributes)
	}

	if cap(c.logs) > 256 && len(c.logs) < cap(c.logs)/8 {
		newCap := cap(c.logs) / 4
		if newCap < 32 {
			newCap = 32
		}
		c.logs = make([]LogRecord, 0, newCap)
	} else {
		c.logs = c.logs[:0]
	}

	return result
}

// Count returns the current number of buffered spans.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.spans)
}

// LogCount returns the current number of buffered log records.
func (c *Collector) LogCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.logs)
}

// DroppedCount returns the total number of items dropped due to
// backpressure.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous collection for testing.
// When enabled, items are buffered directly without using the channel.
// This makes tests deterministic by eliminating async behavior.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode = sync
}

// Reset clears all buffered items and resets the drop counter.
// Does not affect the running goroutine - use Close for that.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.spans = c.spans[:0]
	c.logs = c.logs[:0]
	c.droppedCount.Store(0)
}

// Close shuts down the collector gracefully, draining anything already
// queued. Safe to call multiple times.
func (c *Collector) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.stopCh)
	select {
	case <-c.done:
		// Clean shutdown completed.
	case <-time.After(100 * time.Millisecond):
		// Timeout - receive loop is wedged; give up rather than block.
	}
}
