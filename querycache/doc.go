// Package querycache provides transparent query caching and invalidation on
// top of the cache package's tiered store.
//
// # Overview
//
// Business logic calls three entry points:
//
//   - WrapRead: read-through caching for a read operation
//   - RunWrite: a single write followed by dependency-aware invalidation
//   - RunTransaction: a multi-step write with explicitly declared tables
//
// The caller supplies a cache namespace and key, plus a closure that
// performs the actual operation against the data store. The wrapper never
// inspects the closure; writes are described either by an explicit table
// list or by a textual descriptor that the Classifier turns into a tagged
// Operation.
//
// # Basic Usage
//
//	w := querycache.NewWrapper(store, nil, nil)
//
//	company, err := querycache.WrapRead(ctx, w, "companies", "PETR4", time.Minute,
//		func(ctx context.Context) (Company, error) {
//			return repo.FindByTicker(ctx, "PETR4")
//		})
//
//	_, err = querycache.RunWrite(ctx, w,
//		querycache.WriteOp{Descriptor: `financialData.updateMany({...})`},
//		func(ctx context.Context) (int, error) {
//			return repo.RefreshFinancials(ctx)
//		})
//
// # Classification
//
// The Classifier applies an ordered list of pattern matchers to the
// descriptor: SQL clauses (FROM, JOIN, INSERT INTO, UPDATE, DELETE FROM)
// and model method chains (model.findMany, model.updateMany, ...). Raw
// identifiers resolve through an explicit model-to-table map, falling back
// to snake_case plus pluralization. It is deliberately a heuristic, not a
// parser: unrecognized operations are treated as non-cacheable, and a write
// that yields no tables invalidates nothing and logs a warning.
//
// # Invalidation
//
// Affected tables expand one level through the DependencyGraph (the graph
// is reflexive, so a table always invalidates its own namespace), and every
// resulting namespace is cleared on both cache backends before RunWrite
// returns. A mutator error suppresses invalidation entirely: nothing
// committed, nothing to invalidate.
//
// # Consistency
//
// Within one process, a read issued after RunWrite returns sees fresh data.
// Across processes there is a propagation window during which another
// instance may still serve a stale value; that is an accepted
// weak-consistency tradeoff.
//
// # See Also
//
// For the tiered store and its connection lifecycle, see the cache package.
// For container wiring, see pkg/di.
package querycache
