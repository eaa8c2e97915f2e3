package logger

import (
	"context"
	"sync"
	"testing"
	"time"
)

type capturePublisher struct {
	mu      sync.Mutex
	topics  []string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	batch, ok := payload.([]AggregatedLogEntry)
	if !ok {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.batches = append(p.batches, batch)
	return nil
}

func (p *capturePublisher) snapshot() ([]string, [][]AggregatedLogEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...), append([][]AggregatedLogEntry(nil), p.batches...)
}

func TestCollectorDeduplicatesRepeats(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 100,
		Topic:          "service.logs",
		Publisher:      pub,
	})

	fields := map[string]interface{}{"session": "berlin", "date": "2023-03-26"}
	for i := 0; i < 5; i++ {
		c.AddLog("warn", "session day skipped", fields, "extractor.go:42")
	}
	c.Close()

	topics, batches := pub.snapshot()
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	if topics[0] != "service.logs" {
		t.Fatalf("unexpected topic %q", topics[0])
	}
	if len(batches[0]) != 1 {
		t.Fatalf("expected 1 aggregated entry, got %d", len(batches[0]))
	}
	e := batches[0][0]
	if e.Count != 5 || e.Level != "warn" || e.Message != "session day skipped" {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e.LastSeen.Before(e.FirstSeen) {
		t.Fatalf("last seen %v before first seen %v", e.LastSeen, e.FirstSeen)
	}
}

func TestCollectorKeepsDistinctEntriesApart(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 100,
		Topic:          "service.logs",
		Publisher:      pub,
	})

	c.AddLog("warn", "session day skipped", map[string]interface{}{"date": "2023-03-26"}, "extractor.go:42")
	c.AddLog("warn", "session day skipped", map[string]interface{}{"date": "2023-10-29"}, "extractor.go:42")
	c.AddLog("error", "store insert failed", nil, "store.go:120")
	c.Close()

	_, batches := pub.snapshot()
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	if len(batches[0]) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(batches[0]), batches[0])
	}
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 2,
		Topic:          "service.logs",
		Publisher:      pub,
	})

	c.AddLog("error", "first", nil, "a.go:1")
	c.AddLog("error", "second", nil, "b.go:2")
	c.Close()

	_, batches := pub.snapshot()
	if len(batches) != 1 {
		t.Fatalf("expected threshold flush to ship 1 batch, got %d", len(batches))
	}
	if len(batches[0]) != 2 {
		t.Fatalf("expected 2 entries in batch, got %d", len(batches[0]))
	}
}

func TestLoggerFeedsCollectorFromWarn(t *testing.T) {
	l, err := New(&Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	pub := &capturePublisher{}
	l.AddCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 100,
		Topic:          "service.logs",
		Publisher:      pub,
	})

	for i := 0; i < 3; i++ {
		l.Warn("backfill day skipped", String("session", "berlin"))
	}
	l.RemoveCollector()

	_, batches := pub.snapshot()
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("expected one aggregated entry, got %+v", batches)
	}
	e := batches[0][0]
	if e.Count != 3 {
		t.Fatalf("count = %d, want 3", e.Count)
	}
	if e.Fields["session"] != "berlin" {
		t.Fatalf("unexpected fields %+v", e.Fields)
	}
	if e.Caller == "" || e.Caller == "unknown" {
		t.Fatalf("caller not captured: %q", e.Caller)
	}
}
