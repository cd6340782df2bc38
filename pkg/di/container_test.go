package di

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/querycache"
)

func testConfig() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Redis.Enabled = false
	return cfg
}

func TestNewContainer_WiresEverything(t *testing.T) {
	c, err := NewContainer(testConfig())
	if err != nil {
		t.Fatalf("NewContainer failed: %v", err)
	}
	defer c.Close()

	if c.Wrapper() == nil {
		t.Fatal("expected wrapper")
	}
	if c.Service() == nil {
		t.Fatal("expected service")
	}
	if c.Classifier() == nil {
		t.Fatal("expected classifier")
	}
	if c.Graph() == nil {
		t.Fatal("expected graph")
	}
	if c.Config().DefaultTTL != testConfig().DefaultTTL {
		t.Fatal("expected config copy to match input")
	}
}

func TestNewContainer_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultTTL = 0

	if _, err := NewContainer(cfg); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestContainer_EndToEnd(t *testing.T) {
	c, err := NewContainer(testConfig())
	if err != nil {
		t.Fatalf("NewContainer failed: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	w := c.Wrapper()

	calls := 0
	read := func(ctx context.Context) (map[string]int, error) {
		calls++
		return map[string]int{"price": 30}, nil
	}

	// Read-through.
	got, err := querycache.WrapRead(ctx, w, "companies", "PETR4", time.Minute, read)
	if err != nil {
		t.Fatalf("WrapRead failed: %v", err)
	}
	if got["price"] != 30 {
		t.Fatalf("unexpected value: %v", got)
	}
	if _, err := querycache.WrapRead(ctx, w, "companies", "PETR4", time.Minute, read); err != nil {
		t.Fatalf("second WrapRead failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one producer call, got %d", calls)
	}

	// A financial_data write invalidates the companies namespace through
	// the default graph.
	if _, err := querycache.RunWrite(ctx, w, querycache.WriteOp{Tables: []string{"financial_data"}}, func(ctx context.Context) (int, error) {
		return 1, nil
	}); err != nil {
		t.Fatalf("RunWrite failed: %v", err)
	}

	if _, err := querycache.WrapRead(ctx, w, "companies", "PETR4", time.Minute, read); err != nil {
		t.Fatalf("WrapRead after write failed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected producer re-invoked after invalidation, got %d calls", calls)
	}
}

func TestContainer_AdminSurface(t *testing.T) {
	c, err := NewContainer(testConfig())
	if err != nil {
		t.Fatalf("NewContainer failed: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	svc := c.Service()

	state := svc.State()
	if state.Disabled {
		t.Fatal("fresh container must not be disabled")
	}
	if state.InstanceID == "" {
		t.Fatal("expected an instance id")
	}

	svc.Set(ctx, "companies", "PETR4", []byte("v"), time.Minute)
	if counts := svc.Counts(ctx); counts.Local != 1 {
		t.Fatalf("expected 1 local key, got %d", counts.Local)
	}

	svc.ClearAll(ctx)
	if counts := svc.Counts(ctx); counts.Local != 0 {
		t.Fatalf("expected cleared store, got %d keys", counts.Local)
	}
}

func TestContainer_CustomGraphOption(t *testing.T) {
	graph := querycache.NewDependencyGraph(map[string][]string{
		"orders": {"order_items"},
	})

	c, err := NewContainer(testConfig(), WithGraph(graph))
	if err != nil {
		t.Fatalf("NewContainer failed: %v", err)
	}
	defer c.Close()

	got := c.Graph().Expand([]string{"orders"})
	if len(got) != 2 {
		t.Fatalf("expected custom graph in use, Expand = %v", got)
	}
}
