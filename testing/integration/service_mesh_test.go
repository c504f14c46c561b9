package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/otelz"
)

// TestServiceMeshCommunication demonstrates tracing across multiple services.
// in a mesh topology where services call each other.
func TestServiceMeshCommunication(t *testing.T) {
	// Create shared tracer for all services.
	collector := NewMockCollector(t, "mesh", 1000)
	defer collector.Close()
	tracer := otelz.NewTracer(otelz.New(otelz.WithExporter(collector.Collector)))

	// Create mesh services.
	api := NewMockService("api-gateway", tracer)
	auth := NewMockService("auth-service", tracer)
	catalog := NewMockService("catalog-service", tracer)
	inventory := NewMockService("inventory-service", tracer)
	payment := NewMockService("payment-service", tracer)

	// Configure latencies to simulate realistic network.
	api.SetLatency(5 * time.Millisecond)
	auth.SetLatency(15 * time.Millisecond)
	catalog.SetLatency(20 * time.Millisecond)
	inventory.SetLatency(10 * time.Millisecond)
	payment.SetLatency(30 * time.Millisecond)

	// Simulate a distributed transaction.
	ctx := context.Background()
	ctx, rootSpan := tracer.StartSpan(ctx, "checkout-flow", map[otelz.Tag]string{
		"flow":    "checkout",
		"user_id": "user-123",
	})
	rootSpanID := rootSpan.SpanID()

	// API Gateway receives request.
	err := api.Call(ctx, "receive-request")
	if err != nil {
		t.Fatalf("API call failed: %v", err)
	}

	// Authenticate user.
	err = auth.Call(ctx, "verify-token")
	if err != nil {
		t.Fatalf("Auth call failed: %v", err)
	}

	// Fetch catalog items in parallel.
	var wg sync.WaitGroup
	itemIDs := []string{"item-1", "item-2", "item-3"}

	for _, itemID := range itemIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()

			// Each item lookup creates its own span.
			itemCtx, itemSpan := tracer.StartSpan(ctx, otelz.Key(fmt.Sprintf("fetch-item-%s", id)), nil)
			itemSpan.SetTag("item_id", id)

			// Catalog lookup.
			catalog.Call(itemCtx, "get-item-details")

			// Inventory check.
			inventory.Call(itemCtx, "check-availability")

			itemSpan.Finish()
		}(itemID)
	}

	wg.Wait()

	// Process payment.
	err = payment.Call(ctx, "process-payment")
	if err != nil {
		t.Fatalf("Payment call failed: %v", err)
	}

	rootSpan.Finish()

	// Wait for all spans to be collected.
	expectedSpans := 1 + 1 + 1 + (len(itemIDs) * 3) + 1 // root + api + auth + (items * 3 ops) + payment.
	spans := collector.WaitForSpans(expectedSpans, 200*time.Millisecond)

	// Analyze the trace.
	analyzer := NewTraceAnalyzer(spans)

	// Verify span count.
	if analyzer.CountSpans() < expectedSpans {
		t.Errorf("Expected at least %d spans, got %d", expectedSpans, analyzer.CountSpans())
	}

	// Verify all spans share same trace ID.
	var traceID otelz.TraceID
	for _, span := range spans {
		if traceID.IsZero() {
			traceID = span.TraceID
		} else if span.TraceID != traceID {
			t.Errorf("Span %s has different trace ID: %s", span.Name, span.TraceID)
		}
	}

	// Verify service calls exist.
	services := []otelz.Key{
		"api-gateway.receive-request",
		"auth-service.verify-token",
		"catalog-service.get-item-details",
		"inventory-service.check-availability",
		"payment-service.process-payment",
	}

	for _, service := range services {
		if analyzer.GetSpansByName(service) == nil {
			t.Errorf("Service span '%s' not found", service)
		}
	}

	// Verify parallel item fetches have same parent.
	for _, itemID := range itemIDs {
		itemSpans := analyzer.GetSpansByName(otelz.Key(fmt.Sprintf("fetch-item-%s", itemID)))
		if len(itemSpans) == 0 {
			t.Errorf("Item span for %s not found", itemID)
			continue
		}

		// Should be child of root span.
		itemSpan := itemSpans[0]
		if itemSpan.ParentSpanID != rootSpanID {
			t.Errorf("Item span %s not child of root", itemID)
		}
	}

	// Whole flow forms one tree rooted at checkout-flow.
	if analyzer.CountTrees() != 1 {
		t.Errorf("Expected 1 trace tree, got %d", analyzer.CountTrees())
	}
	criticalPath := analyzer.GetCriticalPath()
	if len(criticalPath) == 0 {
		t.Error("Critical path should not be empty")
	} else if criticalPath[0].Name != "checkout-flow" {
		t.Errorf("Critical path should start at root, got %s", criticalPath[0].Name)
	}

	// Print trace tree for debugging.
	t.Logf("Service Mesh Trace Tree:\n%s", PrintSpanTree(analyzer.trees))
}

// TestTokenHandoffAcrossMesh verifies trace continuity over explicit
// token hand-off between three independent SDK instances, the way
// separate processes continue each other's traces.
func TestTokenHandoffAcrossMesh(t *testing.T) {
	type process struct {
		tracer    *otelz.Tracer
		collector *MockCollector
	}
	newProcess := func(name string) process {
		collector := NewMockCollector(t, name, 100)
		return process{
			tracer:    otelz.NewTracer(otelz.New(otelz.WithExporter(collector.Collector))),
			collector: collector,
		}
	}

	gateway := newProcess("gateway")
	orders := newProcess("orders")
	billing := newProcess("billing")
	defer gateway.collector.Close()
	defer orders.collector.Close()
	defer billing.collector.Close()

	// Hop 1: gateway roots the trace.
	_, gatewaySpan := gateway.tracer.StartSpan(context.Background(), "gateway-request", nil)
	gatewayTraceID := gatewaySpan.TraceID()
	gatewaySpanID := gatewaySpan.SpanID()
	hop1 := gatewaySpan.Token()

	// Hop 2: orders continues it.
	_, ordersSpan := orders.tracer.StartSpan(context.Background(), "orders-handler", nil)
	ordersSpan.SetRemoteParent(hop1)
	ordersSpanID := ordersSpan.SpanID()
	hop2 := ordersSpan.Token()

	// Hop 3: billing continues from orders.
	_, billingSpan := billing.tracer.StartSpan(context.Background(), "billing-handler", nil)
	billingSpan.SetRemoteParent(hop2)

	billingSpan.Finish()
	ordersSpan.Finish()
	gatewaySpan.Finish()

	// Each process exported exactly its own span.
	gatewayRecs := gateway.collector.Export()
	orderRecs := orders.collector.Export()
	billingRecs := billing.collector.Export()
	if len(gatewayRecs) != 1 || len(orderRecs) != 1 || len(billingRecs) != 1 {
		t.Fatalf("Expected 1 span per process, got %d/%d/%d",
			len(gatewayRecs), len(orderRecs), len(billingRecs))
	}

	// All three hops share the gateway's trace.
	if orderRecs[0].TraceID != gatewayTraceID {
		t.Errorf("Orders span has wrong TraceID: expected %s, got %s",
			gatewayTraceID, orderRecs[0].TraceID)
	}
	if billingRecs[0].TraceID != gatewayTraceID {
		t.Errorf("Billing span has wrong TraceID: expected %s, got %s",
			gatewayTraceID, billingRecs[0].TraceID)
	}

	// Parent chain: billing -> orders -> gateway.
	if !gatewayRecs[0].Root() {
		t.Error("Gateway span should be the trace root")
	}
	if orderRecs[0].ParentSpanID != gatewaySpanID {
		t.Errorf("Orders span parent: expected %s, got %s",
			gatewaySpanID, orderRecs[0].ParentSpanID)
	}
	if billingRecs[0].ParentSpanID != ordersSpanID {
		t.Errorf("Billing span parent: expected %s, got %s",
			ordersSpanID, billingRecs[0].ParentSpanID)
	}
}

// TestFlakyServiceTracing verifies failing service calls stay inside
// the trace with error annotations.
func TestFlakyServiceTracing(t *testing.T) {
	collector := NewMockCollector(t, "flaky", 1000)
	defer collector.Close()
	tracer := otelz.NewTracer(otelz.New(otelz.WithExporter(collector.Collector)))

	stable := NewMockService("stable-service", tracer)
	flaky := NewMockService("flaky-service", tracer)
	stable.SetLatency(time.Millisecond)
	flaky.SetLatency(time.Millisecond)
	flaky.SetFailureRate(1.0) // Fails every call.

	ctx := context.Background()
	requests := 5
	failures := 0

	for i := 0; i < requests; i++ {
		requestCtx, requestSpan := tracer.StartSpan(ctx, otelz.Key(fmt.Sprintf("request-%d", i)), nil)
		requestSpan.SetTag("request_id", fmt.Sprintf("%d", i))

		if err := stable.Call(requestCtx, "process"); err != nil {
			t.Errorf("Stable service failed: %v", err)
		}
		if err := flaky.Call(requestCtx, "process"); err != nil {
			failures++
			requestSpan.SetTag("error", "true")
		}

		requestSpan.Finish()
	}

	if failures != requests {
		t.Errorf("Expected %d failures, got %d", requests, failures)
	}

	spans := collector.GetAll()
	expected := requests * 3 // request + stable + flaky per iteration.
	if len(spans) != expected {
		t.Fatalf("Expected %d spans, got %d", expected, len(spans))
	}

	analyzer := NewTraceAnalyzer(spans)

	// Each request roots its own trace.
	if analyzer.CountTrees() != requests {
		t.Errorf("Expected %d separate traces, got %d", requests, analyzer.CountTrees())
	}

	// Flaky calls carry error annotations.
	flakySpans := analyzer.GetSpansByName("flaky-service.process")
	if len(flakySpans) != requests {
		t.Fatalf("Expected %d flaky spans, got %d", requests, len(flakySpans))
	}
	for _, span := range flakySpans {
		NewSpanMatcher(t, &span).
			HasAttribute("error", "true").
			HasAttribute("error.message", "simulated failure")
	}

	// Stable calls carry success annotations.
	stableSpans := analyzer.GetSpansByName("stable-service.process")
	if len(stableSpans) != requests {
		t.Fatalf("Expected %d stable spans, got %d", requests, len(stableSpans))
	}
	for _, span := range stableSpans {
		NewSpanMatcher(t, &span).HasAttribute("success", "true")
	}
}

// TestScenarioWorkflows runs reusable scenarios through the harness.
func TestScenarioWorkflows(t *testing.T) {
	scenarios := []TestScenario{
		{
			Name: "single-root",
			Execute: func(ctx context.Context, tracer *otelz.Tracer) {
				_, span := tracer.StartSpan(ctx, "solo", map[otelz.Tag]string{"kind": "root"})
				span.Finish()
			},
			Verify: func(t *testing.T, spans []otelz.SpanRecord) {
				if len(spans) != 1 {
					t.Fatalf("Expected 1 span, got %d", len(spans))
				}
				NewSpanMatcher(t, &spans[0]).HasAttribute("kind", "root")
				if !spans[0].Root() {
					t.Error("Expected root span")
				}
			},
		},
		{
			Name: "fan-out",
			Execute: func(ctx context.Context, tracer *otelz.Tracer) {
				ctx, parent := tracer.StartSpan(ctx, "fan-out-root", nil)
				var wg sync.WaitGroup
				for i := 0; i < 5; i++ {
					wg.Add(1)
					go func(idx int) {
						defer wg.Done()
						_, child := tracer.StartSpan(ctx, "fan-out-leaf", map[otelz.Tag]string{
							"index": fmt.Sprintf("%d", idx),
						})
						child.Finish()
					}(i)
				}
				wg.Wait()
				parent.Finish()
			},
			Verify: func(t *testing.T, spans []otelz.SpanRecord) {
				if len(spans) != 6 {
					t.Fatalf("Expected 6 spans, got %d", len(spans))
				}
				trees := BuildSpanTree(spans)
				if len(trees) != 1 {
					t.Fatalf("Expected 1 tree, got %d", len(trees))
				}
				if len(trees[0].Children) != 5 {
					t.Errorf("Expected 5 children, got %d", len(trees[0].Children))
				}
			},
		},
	}

	for i := range scenarios {
		scenarios[i].Run(t)
	}
}
