package core_test

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"labelcore/internal/core"
	"labelcore/internal/infra/persistence/memory"
	"labelcore/pkg/domain"
)

type metricsCapture struct {
	mu           sync.Mutex
	observations []metricObservation
}

type metricObservation struct {
	operation string
	success   bool
	duration  time.Duration
}

func (c *metricsCapture) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	c.mu.Lock()
	c.observations = append(c.observations, metricObservation{operation, success, duration})
	c.mu.Unlock()
}

func (c *metricsCapture) find(operation string) []metricObservation {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []metricObservation
	for _, o := range c.observations {
		if o.operation == operation {
			out = append(out, o)
		}
	}
	return out
}

func TestServiceObservabilityHooks(t *testing.T) {
	metrics := &metricsCapture{}
	audit := core.NewMemoryAuditLog()
	var traceBuf bytes.Buffer
	tracer := core.NewJSONTracer(&traceBuf)

	store := memory.NewStore(core.NewDefaultRulesEngine())
	svc := core.NewService(store,
		core.WithMetricsRecorder(metrics),
		core.WithAuditRecorder(audit),
		core.WithTracer(tracer),
	)
	ctx := context.Background()
	if _, err := svc.EnsureDefaults(ctx); err != nil {
		t.Fatalf("ensure defaults: %v", err)
	}

	if _, _, err := svc.CreateProduct(ctx, core.ProductCreation{ProductID: "obs-1", Name: "Observed"}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, _, err := svc.CreateProduct(ctx, core.ProductCreation{ProductID: "obs-1", Name: "Duplicate"}); !domain.IsAlreadyExists(err) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	obs := metrics.find("create_product")
	if len(obs) != 2 {
		t.Fatalf("expected 2 create_product observations, got %d", len(obs))
	}
	if !obs[0].success || obs[1].success {
		t.Fatalf("expected success then failure, got %+v", obs)
	}

	entries := audit.Entries()
	var success, failure *core.AuditEntry
	for i := range entries {
		if entries[i].Operation != "create_product" {
			continue
		}
		switch entries[i].Status {
		case core.AuditStatusSuccess:
			success = &entries[i]
		case core.AuditStatusError:
			failure = &entries[i]
		}
	}
	if success == nil || failure == nil {
		t.Fatalf("expected success and error audit entries, got %+v", entries)
	}
	if success.EntityID != "obs-1" {
		t.Fatalf("expected audited entity id, got %q", success.EntityID)
	}
	if failure.Error == "" {
		t.Fatalf("expected audited error message")
	}

	spans := tracer.Entries()
	var traced int
	for _, span := range spans {
		if span.Operation == "create_product" {
			traced++
		}
	}
	if traced != 2 {
		t.Fatalf("expected 2 create_product spans, got %d", traced)
	}

	dec := json.NewDecoder(&traceBuf)
	var lines int
	for dec.More() {
		var entry core.JSONTraceEntry
		if err := dec.Decode(&entry); err != nil {
			t.Fatalf("decode trace line: %v", err)
		}
		lines++
	}
	if lines != len(spans) {
		t.Fatalf("expected %d encoded trace lines, got %d", len(spans), lines)
	}
}

func TestExpvarMetricsRecorderAggregates(t *testing.T) {
	rec := core.NewExpvarMetricsRecorder("")
	ctx := context.Background()

	rec.Observe(ctx, "create_device", true, 10*time.Millisecond)
	rec.Observe(ctx, "create_device", true, 5*time.Millisecond)
	rec.Observe(ctx, "create_device", false, time.Millisecond)
	rec.Observe(ctx, "", true, time.Second)

	snap := rec.Snapshot()
	if snap.DurationsMS["create_device"] != 16 {
		t.Fatalf("expected 16ms total, got %v", snap.DurationsMS["create_device"])
	}
	if snap.Results["create_device"]["success"] != 2 || snap.Results["create_device"]["error"] != 1 {
		t.Fatalf("unexpected result counters: %+v", snap.Results)
	}
	if len(snap.Results) != 1 {
		t.Fatalf("empty operation must be discarded: %+v", snap.Results)
	}
}
