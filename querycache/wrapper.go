package querycache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-query-cache/cache"
)

// ErrInvalidResultType is returned when a coalesced read resolves to a value
// of a different type than the caller requested. It indicates two callers
// sharing one cache key with different payload types, which is a caller bug.
var ErrInvalidResultType = errors.New("querycache: cached result has unexpected type")

// WriteOp describes a write operation for invalidation purposes. Explicit
// Tables take precedence; otherwise the Descriptor is classified. Writes
// with neither invalidate nothing and are logged as a configuration risk.
type WriteOp struct {
	Descriptor string
	Tables     []string
}

// Wrapper is the public entry point business logic consumes: it wraps reads
// with read-through caching and writes with post-commit invalidation across
// the table dependency graph.
type Wrapper struct {
	store      cache.Store
	classifier *Classifier
	graph      *DependencyGraph
	group      singleflight.Group
	logger     *zap.Logger
	defaultTTL time.Duration
}

// WrapperOption customizes Wrapper construction.
type WrapperOption func(*Wrapper)

// WithLogger sets the wrapper logger.
func WithLogger(logger *zap.Logger) WrapperOption {
	return func(w *Wrapper) {
		if logger != nil {
			w.logger = logger.Named("querycache")
		}
	}
}

// WithDefaultTTL sets the TTL applied when WrapRead is called with a
// non-positive ttl.
func WithDefaultTTL(ttl time.Duration) WrapperOption {
	return func(w *Wrapper) {
		if ttl > 0 {
			w.defaultTTL = ttl
		}
	}
}

// NewWrapper wires a Wrapper over a cache store, a classifier, and a
// dependency graph. A nil classifier or graph falls back to the defaults.
func NewWrapper(store cache.Store, classifier *Classifier, graph *DependencyGraph, opts ...WrapperOption) *Wrapper {
	if classifier == nil {
		classifier = NewClassifier(DefaultClassifierConfig(), nil)
	}
	if graph == nil {
		graph = DefaultGraph()
	}

	w := &Wrapper{
		store:      store,
		classifier: classifier,
		graph:      graph,
		logger:     zap.NewNop(),
		defaultTTL: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WrapRead returns the cached value under (namespace, key) when present;
// on a miss it invokes producer, stores the result with ttl, and returns
// it. Concurrent misses for the same key coalesce onto one producer
// invocation. Cache-layer failures never surface: the worst case is an
// uncached producer call. Producer errors propagate verbatim and nothing
// is stored.
func WrapRead[T any](ctx context.Context, w *Wrapper, namespace, key string, ttl time.Duration, producer func(context.Context) (T, error)) (T, error) {
	var zero T

	if data, ok := w.store.Get(ctx, namespace, key); ok {
		var out T
		err := cache.Unmarshal(data, &out)
		if err == nil {
			return out, nil
		}
		w.logger.Warn("dropping undecodable cached value",
			zap.String("namespace", namespace),
			zap.String("key", key),
			zap.Error(err))
		_ = w.store.Delete(ctx, namespace, key)
	}

	if ttl <= 0 {
		ttl = w.defaultTTL
	}

	result, err, _ := w.group.Do(cache.Key(namespace, key), func() (any, error) {
		out, err := producer(ctx)
		if err != nil {
			return nil, err
		}

		data, err := cache.Marshal(out)
		if err != nil {
			w.logger.Warn("result not cacheable, returning uncached",
				zap.String("namespace", namespace),
				zap.String("key", key),
				zap.Error(err))
			return out, nil
		}
		if err := w.store.Set(ctx, namespace, key, data, ttl); err != nil {
			w.logger.Warn("cache set failed, returning uncached",
				zap.String("namespace", namespace),
				zap.String("key", key),
				zap.Error(err))
		}
		return out, nil
	})
	if err != nil {
		return zero, err
	}

	out, ok := result.(T)
	if !ok {
		return zero, ErrInvalidResultType
	}
	return out, nil
}

// RunWrite invokes mutator and, only when it succeeds, invalidates every
// namespace the write touches: explicit tables or the classified
// descriptor, merged with any tables attached to the context, expanded
// through the dependency graph. Invalidation completes before RunWrite
// returns, so a same-process read that follows observes fresh data.
func RunWrite[T any](ctx context.Context, w *Wrapper, op WriteOp, mutator func(context.Context) (T, error)) (T, error) {
	out, err := mutator(ctx)
	if err != nil {
		// Nothing committed, nothing to invalidate.
		return out, err
	}

	tables := op.Tables
	if len(tables) == 0 && op.Descriptor != "" {
		classified := w.classifier.Classify(op.Descriptor)
		if classified.Kind != KindWrite {
			w.logger.Warn("descriptor did not classify as a write",
				zap.String("descriptor", op.Descriptor),
				zap.Stringer("kind", classified.Kind))
		}
		tables = classified.Tables
	}
	tables = append(tables, AffectedTablesFromContext(ctx)...)

	if len(tables) == 0 {
		w.logger.Warn("write committed with no affected tables, cache not invalidated",
			zap.String("descriptor", op.Descriptor))
		return out, nil
	}

	w.invalidate(ctx, tables)
	return out, nil
}

// RunTransaction is RunWrite for atomic multi-step mutations. Transactions
// are opaque to the classifier, so callers must declare affected tables
// explicitly; invalidation runs once, after the whole transaction commits.
func RunTransaction[T any](ctx context.Context, w *Wrapper, tables []string, mutator func(context.Context) (T, error)) (T, error) {
	out, err := mutator(ctx)
	if err != nil {
		return out, err
	}

	tables = append(append([]string(nil), tables...), AffectedTablesFromContext(ctx)...)
	if len(tables) == 0 {
		w.logger.Warn("transaction committed with no affected tables, cache not invalidated")
		return out, nil
	}

	w.invalidate(ctx, tables)
	return out, nil
}

// Invalidate clears the cache namespaces for the given tables and their
// dependents. Exposed for callers whose writes happen outside the wrapper.
func (w *Wrapper) Invalidate(ctx context.Context, tables ...string) {
	if len(tables) == 0 {
		return
	}
	w.invalidate(ctx, tables)
}

func (w *Wrapper) invalidate(ctx context.Context, tables []string) {
	expanded := w.graph.Expand(dedupeSorted(tables))
	for _, table := range expanded {
		if err := w.store.ClearNamespace(ctx, table); err != nil {
			w.logger.Warn("namespace invalidation failed",
				zap.String("table", table),
				zap.Error(err))
		}
	}
	w.logger.Debug("invalidated cache namespaces", zap.Strings("tables", expanded))
}

// Classifier exposes the wrapper's classifier, mainly for diagnostics.
func (w *Wrapper) Classifier() *Classifier {
	return w.classifier
}

// Graph exposes the wrapper's dependency graph.
func (w *Wrapper) Graph() *DependencyGraph {
	return w.graph
}
