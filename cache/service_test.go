package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-query-cache/internal/redisconn"
)

// fakeBackend is an in-memory stand-in for the distributed backend. Every
// method can be forced to fail to exercise the fallback paths.
type fakeBackend struct {
	mu      sync.Mutex
	entries map[string][]byte
	failAll error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{entries: make(map[string][]byte)}
}

func (f *fakeBackend) fail(err error) {
	f.mu.Lock()
	f.failAll = err
	f.mu.Unlock()
}

func (f *fakeBackend) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	data, ok := f.entries[key]
	if !ok {
		return nil, redisconn.ErrKeyNotFound
	}
	return data, nil
}

func (f *fakeBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return f.failAll
	}
	f.entries[key] = value
	return nil
}

func (f *fakeBackend) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return f.failAll
	}
	for _, k := range keys {
		delete(f.entries, k)
	}
	return nil
}

func (f *fakeBackend) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range f.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeBackend) DBSize(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return 0, f.failAll
	}
	return int64(len(f.entries)), nil
}

func (f *fakeBackend) FlushDB(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return f.failAll
	}
	f.entries = make(map[string][]byte)
	return nil
}

func (f *fakeBackend) Ping(ctx context.Context) error { return nil }
func (f *fakeBackend) Close() error                   { return nil }

func (f *fakeBackend) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func testServiceConfig() Config {
	cfg := DefaultConfig()
	cfg.Redis.IdleCheckInterval = 0
	return cfg
}

func newTestService(t *testing.T, backend *fakeBackend) (*Service, *atomic.Int32) {
	t.Helper()

	var dials atomic.Int32
	dial := func(ctx context.Context, cfg redisconn.Config) (redisconn.Client, error) {
		dials.Add(1)
		return backend, nil
	}

	svc, err := New(testServiceConfig(), withDialer(dial))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	return svc, &dials
}

func TestService_SetGetRoundtrip(t *testing.T) {
	backend := newFakeBackend()
	svc, _ := newTestService(t, backend)
	ctx := context.Background()

	if err := svc.Set(ctx, "companies", "PETR4", []byte(`{"price":30}`), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok := svc.Get(ctx, "companies", "PETR4")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got) != `{"price":30}` {
		t.Fatalf("unexpected value: %s", got)
	}

	// The backend holds the msgpack envelope under the full key.
	if backend.len() != 1 {
		t.Fatalf("expected 1 backend entry, got %d", backend.len())
	}
}

func TestService_GetMissIsFinal(t *testing.T) {
	backend := newFakeBackend()
	svc, _ := newTestService(t, backend)
	ctx := context.Background()

	if _, ok := svc.Get(ctx, "companies", "ABSENT"); ok {
		t.Fatal("expected miss")
	}
}

func TestService_FallbackWhenBackendUnreachable(t *testing.T) {
	var dials atomic.Int32
	dial := func(ctx context.Context, cfg redisconn.Config) (redisconn.Client, error) {
		dials.Add(1)
		return nil, errors.New("connection refused")
	}

	svc, err := New(testServiceConfig(), withDialer(dial))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer svc.Close()

	ctx := context.Background()

	// Set still succeeds: the local store takes the write.
	if err := svc.Set(ctx, "companies", "PETR4", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok := svc.Get(ctx, "companies", "PETR4")
	if !ok {
		t.Fatal("expected fallback hit")
	}
	if string(got) != "v" {
		t.Fatalf("unexpected value: %s", got)
	}
}

func TestService_FallbackWhenBackendDropsAfterSet(t *testing.T) {
	backend := newFakeBackend()
	svc, _ := newTestService(t, backend)
	ctx := context.Background()

	if err := svc.Set(ctx, "companies", "PETR4", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	backend.fail(errors.New("i/o timeout"))

	got, ok := svc.Get(ctx, "companies", "PETR4")
	if !ok {
		t.Fatal("expected local fallback to serve the entry")
	}
	if string(got) != "v" {
		t.Fatalf("unexpected value: %s", got)
	}
}

func TestService_CriticalErrorDisablesBackend(t *testing.T) {
	backend := newFakeBackend()
	svc, dials := newTestService(t, backend)
	ctx := context.Background()

	if err := svc.Set(ctx, "companies", "PETR4", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	backend.fail(errors.New("ERR max number of clients reached"))
	svc.Get(ctx, "companies", "PETR4") // trips the latch

	if !svc.State().Disabled {
		t.Fatal("expected backend disabled after critical error")
	}

	dialsBefore := dials.Load()
	for i := 0; i < 100; i++ {
		svc.Get(ctx, "companies", "PETR4")
		svc.Set(ctx, "companies", "OTHER", []byte("x"), time.Minute)
	}
	if got := dials.Load(); got != dialsBefore {
		t.Fatalf("expected zero connection attempts while disabled, got %d new dials", got-dialsBefore)
	}

	// Operations keep working against the local store.
	if _, ok := svc.Get(ctx, "companies", "PETR4"); !ok {
		t.Fatal("expected local store to keep serving while disabled")
	}

	// Explicit reset re-enables the backend.
	backend.fail(nil)
	svc.Reset()
	if svc.State().Disabled {
		t.Fatal("expected reset to clear disabled state")
	}
	if _, ok := svc.Get(ctx, "companies", "PETR4"); !ok {
		t.Fatal("expected hit after reset")
	}
}

func TestService_DeleteClearsBothBackends(t *testing.T) {
	backend := newFakeBackend()
	svc, _ := newTestService(t, backend)
	ctx := context.Background()

	svc.Set(ctx, "companies", "PETR4", []byte("v"), time.Minute)
	svc.Delete(ctx, "companies", "PETR4")

	if _, ok := svc.Get(ctx, "companies", "PETR4"); ok {
		t.Fatal("expected miss after delete")
	}
	if backend.len() != 0 {
		t.Fatalf("expected backend emptied, got %d entries", backend.len())
	}
}

func TestService_ClearNamespace(t *testing.T) {
	backend := newFakeBackend()
	svc, _ := newTestService(t, backend)
	ctx := context.Background()

	svc.Set(ctx, "companies", "PETR4", []byte("a"), time.Minute)
	svc.Set(ctx, "companies", "VALE3", []byte("b"), time.Minute)
	svc.Set(ctx, "valuations", "PETR4", []byte("c"), time.Minute)

	if err := svc.ClearNamespace(ctx, "companies"); err != nil {
		t.Fatalf("ClearNamespace failed: %v", err)
	}

	if _, ok := svc.Get(ctx, "companies", "PETR4"); ok {
		t.Fatal("expected companies cleared")
	}
	if _, ok := svc.Get(ctx, "valuations", "PETR4"); !ok {
		t.Fatal("expected valuations untouched")
	}
	if backend.len() != 1 {
		t.Fatalf("expected 1 backend entry left, got %d", backend.len())
	}
}

func TestService_ClearNamespacePartialFailureStillClearsLocal(t *testing.T) {
	backend := newFakeBackend()
	svc, _ := newTestService(t, backend)
	ctx := context.Background()

	svc.Set(ctx, "companies", "PETR4", []byte("a"), time.Minute)
	backend.fail(errors.New("i/o timeout"))

	if err := svc.ClearNamespace(ctx, "companies"); err != nil {
		t.Fatalf("ClearNamespace must not fail: %v", err)
	}

	// The backend copy survived, but the local one is gone; a Get now
	// falls back to local (backend failing) and must miss.
	if _, ok := svc.Get(ctx, "companies", "PETR4"); ok {
		t.Fatal("expected local copy cleared despite backend failure")
	}
}

func TestService_ClearAllAndCounts(t *testing.T) {
	backend := newFakeBackend()
	svc, _ := newTestService(t, backend)
	ctx := context.Background()

	svc.Set(ctx, "companies", "PETR4", []byte("a"), time.Minute)
	svc.Set(ctx, "valuations", "PETR4", []byte("b"), time.Minute)

	counts := svc.Counts(ctx)
	if counts.Redis != 2 {
		t.Fatalf("expected 2 redis keys, got %d", counts.Redis)
	}
	if counts.Local != 2 {
		t.Fatalf("expected 2 local keys, got %d", counts.Local)
	}

	if err := svc.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}

	counts = svc.Counts(ctx)
	if counts.Redis != 0 || counts.Local != 0 {
		t.Fatalf("expected empty backends, got %+v", counts)
	}
}

func TestService_RedisDisabledUsesLocalOnly(t *testing.T) {
	cfg := testServiceConfig()
	cfg.Redis.Enabled = false

	var dials atomic.Int32
	dial := func(ctx context.Context, c redisconn.Config) (redisconn.Client, error) {
		dials.Add(1)
		return newFakeBackend(), nil
	}

	svc, err := New(cfg, withDialer(dial))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer svc.Close()

	ctx := context.Background()
	svc.Set(ctx, "companies", "PETR4", []byte("v"), time.Minute)

	if _, ok := svc.Get(ctx, "companies", "PETR4"); !ok {
		t.Fatal("expected local hit")
	}
	if dials.Load() != 0 {
		t.Fatal("expected no connection attempts with backend disabled")
	}

	counts := svc.Counts(ctx)
	if counts.Redis != -1 {
		t.Fatalf("expected redis count -1 when disabled, got %d", counts.Redis)
	}
}

func TestService_TTLExpiryOnFallback(t *testing.T) {
	cfg := testServiceConfig()
	cfg.Redis.Enabled = false

	svc, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer svc.Close()

	ctx := context.Background()
	svc.Set(ctx, "companies", "PETR4", []byte("v"), 20*time.Millisecond)

	time.Sleep(40 * time.Millisecond)

	if _, ok := svc.Get(ctx, "companies", "PETR4"); ok {
		t.Fatal("expected entry expired")
	}
}
