package querycache

import "context"

type affectedTablesContextKey struct{}

// WithAffectedTables attaches additional affected tables to the context.
// They are merged into the invalidation set of any RunWrite or
// RunTransaction executed with that context, which lets middleware declare
// side-effect tables the descriptor cannot express.
func WithAffectedTables(ctx context.Context, tables ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(tables) == 0 {
		return ctx
	}

	combined := dedupeSorted(append(AffectedTablesFromContext(ctx), tables...))
	if len(combined) == 0 {
		return ctx
	}

	return context.WithValue(ctx, affectedTablesContextKey{}, combined)
}

// AffectedTablesFromContext returns the tables attached with
// WithAffectedTables, or nil.
func AffectedTablesFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	if tables, ok := ctx.Value(affectedTablesContextKey{}).([]string); ok {
		return append([]string(nil), tables...)
	}
	return nil
}
