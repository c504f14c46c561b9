package integration

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/otelz"
)

// MockCollector wraps a real collector with test utilities.
// Runs in sync mode so tests never wait on channel delivery.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockCollector struct {
	exported []otelz.SpanRecord
	*otelz.Collector
	t  *testing.T
	mu sync.Mutex
}

// NewMockCollector creates a collector for testing.
func NewMockCollector(t *testing.T, name string, bufferSize int) *MockCollector {
	collector := otelz.NewCollector(name, bufferSize)
	collector.SetSyncMode(true) // Enable synchronous collection for testing.
	return &MockCollector{
		Collector: collector,
		t:         t,
		exported:  make([]otelz.SpanRecord, 0),
	}
}

// Export returns newly collected spans and clears the buffer.
func (m *MockCollector) Export() []otelz.SpanRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Get spans from underlying collector.
	spans := m.Collector.Export()
	m.exported = append(m.exported, spans...)
	return spans
}

// GetAll returns all exported spans without clearing.
func (m *MockCollector) GetAll() []otelz.SpanRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Drain the collector into the accumulated view first.
	current := m.Collector.Export()
	if len(current) > 0 {
		m.exported = append(m.exported, current...)
	}

	all := make([]otelz.SpanRecord, len(m.exported))
	copy(all, m.exported)
	return all
}

// WaitForSpans waits for expected number of spans with timeout.
func (m *MockCollector) WaitForSpans(expected int, timeout time.Duration) []otelz.SpanRecord {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		spans := m.GetAll()
		if len(spans) >= expected {
			return spans[:expected]
		}
		<-ticker.C
	}

	// Timeout - return what we have.
	spans := m.GetAll()
	m.t.Errorf("Timeout waiting for spans: expected %d, got %d", expected, len(spans))
	return spans
}

// AssertSpanCount verifies exact span count.
func (m *MockCollector) AssertSpanCount(expected int) {
	spans := m.Export()
	if len(spans) != expected {
		m.t.Errorf("Expected %d spans, got %d", expected, len(spans))
	}
}

// AssertSpanNamed checks if a span with given name exists.
func (m *MockCollector) AssertSpanNamed(name otelz.Key) *otelz.SpanRecord {
	spans := m.GetAll()
	for i := range spans {
		span := &spans[i]
		if span.Name == name {
			return span
		}
	}
	m.t.Errorf("Span named '%s' not found", name)
	return nil
}

// AssertParentChild verifies parent-child relationship.
func (m *MockCollector) AssertParentChild(parentName, childName otelz.Key) {
	spans := m.GetAll()
	var parent, child *otelz.SpanRecord

	for i := range spans {
		if spans[i].Name == parentName {
			parent = &spans[i]
		}
		if spans[i].Name == childName {
			child = &spans[i]
		}
	}

	if parent == nil {
		m.t.Errorf("Parent span '%s' not found", parentName)
		return
	}
	if child == nil {
		m.t.Errorf("Child span '%s' not found", childName)
		return
	}

	if child.ParentSpanID != parent.SpanID {
		m.t.Errorf("Parent-child relationship broken: %s is not parent of %s. Child ParentSpanID=%s, Parent SpanID=%s",
			parentName, childName, child.ParentSpanID, parent.SpanID)
	}
	if child.TraceID != parent.TraceID {
		m.t.Errorf("Trace ID mismatch: parent=%s, child=%s", parent.TraceID, child.TraceID)
	}
}

// spanDuration computes a finished span's wall time.
func spanDuration(rec otelz.SpanRecord) time.Duration {
	return rec.EndTime.Sub(rec.StartTime)
}

// SpanTree represents a hierarchical view of spans.
type SpanTree struct {
	Span     otelz.SpanRecord
	Children []*SpanTree
}

// BuildSpanTree constructs a tree from flat span list. A span whose
// parent was not collected here (a remote parent in another process)
// roots its own subtree.
func BuildSpanTree(spans []otelz.SpanRecord) []*SpanTree {
	nodeMap := make(map[otelz.SpanID]*SpanTree)
	roots := make([]*SpanTree, 0)

	// Create nodes.
	for i := range spans {
		span := spans[i]
		nodeMap[span.SpanID] = &SpanTree{
			Span:     span,
			Children: make([]*SpanTree, 0),
		}
	}

	// Build relationships.
	for i := range spans {
		span := spans[i]
		node := nodeMap[span.SpanID]
		if parent, exists := nodeMap[span.ParentSpanID]; exists && !span.Root() {
			parent.Children = append(parent.Children, node)
		} else {
			roots = append(roots, node)
		}
	}

	return roots
}

// PrintSpanTree formats span tree for debugging.
func PrintSpanTree(trees []*SpanTree) string {
	var sb strings.Builder
	for _, tree := range trees {
		printTreeNode(&sb, tree, 0)
	}
	return sb.String()
}

func printTreeNode(sb *strings.Builder, node *SpanTree, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(sb, "%s%s (%.2fms)\n",
		indent, node.Span.Name, spanDuration(node.Span).Seconds()*1000)
	for _, child := range node.Children {
		printTreeNode(sb, child, depth+1)
	}
}

// TestScenario represents a reusable test case.
type TestScenario struct {
	Setup   func() (*otelz.Tracer, *MockCollector)
	Execute func(context.Context, *otelz.Tracer)
	Verify  func(*testing.T, []otelz.SpanRecord)
	Name    string
}

// Run executes the test scenario.
func (s *TestScenario) Run(t *testing.T) {
	t.Run(s.Name, func(t *testing.T) {
		var tracer *otelz.Tracer
		var collector *MockCollector
		if s.Setup != nil {
			tracer, collector = s.Setup()
		}
		if tracer == nil || collector == nil {
			// Use defaults if not provided.
			collector = NewMockCollector(t, "test", 1000)
			tracer = otelz.NewTracer(otelz.New(otelz.WithExporter(collector.Collector)))
		}
		defer collector.Close()

		// Execute.
		ctx := context.Background()
		s.Execute(ctx, tracer)

		// Sync mode - spans are already buffered.
		spans := collector.Export()
		s.Verify(t, spans)
	})
}

// MockService simulates an external service for integration testing.
type MockService struct {
	tracer       *otelz.Tracer
	name         string
	latency      time.Duration
	mu           sync.Mutex
	requestCount int
	failureRate  float32
}

// NewMockService creates a simulated service.
func NewMockService(name string, tracer *otelz.Tracer) *MockService {
	return &MockService{
		name:    name,
		latency: 10 * time.Millisecond,
		tracer:  tracer,
	}
}

// SetLatency configures response time.
func (m *MockService) SetLatency(d time.Duration) {
	m.mu.Lock()
	m.latency = d
	m.mu.Unlock()
}

// SetFailureRate configures error probability (0.0-1.0).
func (m *MockService) SetFailureRate(rate float32) {
	m.mu.Lock()
	m.failureRate = rate
	m.mu.Unlock()
}

// Call simulates a service call with tracing.
func (m *MockService) Call(ctx context.Context, operation string) error {
	m.mu.Lock()
	m.requestCount++
	count := m.requestCount
	latency := m.latency
	shouldFail := rand.Float32() < m.failureRate
	m.mu.Unlock()

	// Start span for service call.
	_, span := m.tracer.StartSpan(ctx, otelz.Key(fmt.Sprintf("%s.%s", m.name, operation)), map[otelz.Tag]string{
		"service":    m.name,
		"operation":  operation,
		"request_id": fmt.Sprintf("%d", count),
	})
	defer span.Finish()

	// Simulate processing.
	time.Sleep(latency)

	if shouldFail {
		span.SetTag("error", "true")
		span.SetTag("error.message", "simulated failure")
		return fmt.Errorf("%s: simulated failure", m.name)
	}

	span.SetTag("success", "true")
	return nil
}

// SpanMatcher provides fluent assertions for spans.
type SpanMatcher struct {
	t    *testing.T
	span *otelz.SpanRecord
}

// NewSpanMatcher creates a matcher for span assertions.
func NewSpanMatcher(t *testing.T, span *otelz.SpanRecord) *SpanMatcher {
	return &SpanMatcher{t: t, span: span}
}

// HasAttribute verifies attribute exists with value.
func (m *SpanMatcher) HasAttribute(key otelz.Tag, value string) *SpanMatcher {
	if m.span == nil {
		return m
	}
	if actual, exists := m.span.Attributes[key]; !exists {
		m.t.Errorf("Span %s missing attribute '%s'", m.span.Name, key)
	} else if actual != value {
		m.t.Errorf("Span %s attribute '%s': expected '%s', got '%s'",
			m.span.Name, key, value, actual)
	}
	return m
}

// HasParent verifies parent relationship.
func (m *SpanMatcher) HasParent(parent otelz.SpanID) *SpanMatcher {
	if m.span == nil {
		return m
	}
	if m.span.ParentSpanID != parent {
		m.t.Errorf("Span %s wrong parent: expected %s, got %s",
			m.span.Name, parent, m.span.ParentSpanID)
	}
	return m
}

// DurationBetween verifies duration is in range.
func (m *SpanMatcher) DurationBetween(minDur, maxDur time.Duration) *SpanMatcher {
	if m.span == nil {
		return m
	}
	dur := spanDuration(*m.span)
	if dur < minDur || dur > maxDur {
		m.t.Errorf("Span %s duration %v not in range [%v, %v]",
			m.span.Name, dur, minDur, maxDur)
	}
	return m
}

// TraceAnalyzer provides trace-level assertions.
type TraceAnalyzer struct {
	spans  []otelz.SpanRecord
	byID   map[otelz.SpanID]otelz.SpanRecord
	byName map[otelz.Key][]otelz.SpanRecord
	trees  []*SpanTree
}

// NewTraceAnalyzer creates an analyzer for a set of spans.
func NewTraceAnalyzer(spans []otelz.SpanRecord) *TraceAnalyzer {
	a := &TraceAnalyzer{
		spans:  spans,
		byID:   make(map[otelz.SpanID]otelz.SpanRecord),
		byName: make(map[otelz.Key][]otelz.SpanRecord),
	}

	for i := range spans {
		span := spans[i]
		a.byID[span.SpanID] = span
		a.byName[span.Name] = append(a.byName[span.Name], span)
	}

	a.trees = BuildSpanTree(spans)
	return a
}

// GetSpan retrieves span by ID.
func (a *TraceAnalyzer) GetSpan(spanID otelz.SpanID) (otelz.SpanRecord, bool) {
	span, exists := a.byID[spanID]
	return span, exists
}

// GetSpansByName retrieves all spans with given name.
func (a *TraceAnalyzer) GetSpansByName(name otelz.Key) []otelz.SpanRecord {
	return a.byName[name]
}

// CountSpans returns total span count.
func (a *TraceAnalyzer) CountSpans() int {
	return len(a.spans)
}

// CountTrees returns number of root spans.
func (a *TraceAnalyzer) CountTrees() int {
	return len(a.trees)
}

// VerifyChain checks if spans form a valid parent-child chain.
func (a *TraceAnalyzer) VerifyChain(names ...otelz.Key) error {
	if len(names) < 2 {
		return fmt.Errorf("chain requires at least 2 spans")
	}

	var prevSpan *otelz.SpanRecord
	for i, name := range names {
		spans := a.GetSpansByName(name)
		if len(spans) == 0 {
			return fmt.Errorf("span '%s' not found", name)
		}

		// For simplicity, use first match.
		span := spans[0]

		if i > 0 && prevSpan != nil {
			if span.ParentSpanID != prevSpan.SpanID {
				return fmt.Errorf("broken chain: %s is not child of %s", name, names[i-1])
			}
		}

		prevSpan = &span
	}

	return nil
}

// GetCriticalPath returns the longest duration path through the trace.
func (a *TraceAnalyzer) GetCriticalPath() []otelz.SpanRecord {
	if len(a.trees) == 0 {
		return nil
	}

	// Find path with maximum total duration.
	var maxPath []otelz.SpanRecord
	var maxDuration time.Duration

	for _, tree := range a.trees {
		path := a.findLongestPath(tree)
		duration := a.pathDuration(path)
		if duration > maxDuration {
			maxDuration = duration
			maxPath = path
		}
	}

	return maxPath
}

func (a *TraceAnalyzer) findLongestPath(node *SpanTree) []otelz.SpanRecord {
	path := []otelz.SpanRecord{node.Span}

	if len(node.Children) == 0 {
		return path
	}

	// Find child with longest path.
	var longestChild []otelz.SpanRecord
	var longestDuration time.Duration

	for _, child := range node.Children {
		childPath := a.findLongestPath(child)
		duration := a.pathDuration(childPath)
		if duration > longestDuration {
			longestDuration = duration
			longestChild = childPath
		}
	}

	return append(path, longestChild...)
}

func (*TraceAnalyzer) pathDuration(path []otelz.SpanRecord) time.Duration {
	var total time.Duration
	for i := range path {
		total += spanDuration(path[i])
	}
	return total
}
