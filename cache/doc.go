// Package cache provides the tiered cache store that backs the query
// wrapper: a distributed backend fronted by an in-process fallback.
//
// # Overview
//
// The package exports the Store contract and its default implementation,
// Service. Service tries the distributed backend first for every operation
// and transparently falls back to a local TTL-aware store when the backend
// is unreachable or has been disabled after a critical error. Callers never
// see a backend failure from Get: absence and failure both read as a miss.
//
// # Basic Usage
//
//	svc, err := cache.New(cache.DefaultConfig(), cache.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer svc.Close()
//
//	_ = svc.Set(ctx, "companies", "AAPL-2024", payload, 5*time.Minute)
//	data, ok := svc.Get(ctx, "companies", "AAPL-2024")
//
// # Key Convention
//
// Full keys follow `namespace:identifier`, one namespace per logical table
// (e.g. "companies:AAPL-2024"). Namespace-wide invalidation relies on this
// convention, so identifiers must not be used to smuggle extra separators
// with different semantics.
//
// # Connection Lifecycle
//
// The distributed connection is opened lazily on first use, closed again
// after an idle window to free its slot in the shared pool, and re-opened
// with exponential backoff after transient failures. Backend errors that
// match the configured critical signatures (capacity exhaustion) latch the
// backend off entirely; only the administrative Reset re-enables it. See
// the internal redisconn package for the state machine.
//
// # Error Handling
//
// Set, Delete, ClearNamespace and ClearAll are best effort against the
// distributed backend: the local store is always updated, and a backend
// failure is logged rather than returned. The only error Set can return is
// a value-encoding failure.
//
// # See Also
//
// For read-through wrapping and write invalidation on top of this store,
// see the querycache package. For container wiring, see pkg/di.
package cache

// compile-time check that Service satisfies the Store contract.
var _ Store = (*Service)(nil)
