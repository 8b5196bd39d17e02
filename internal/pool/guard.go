package pool

import "context"

// guardKey marks a context as belonging to an in-flight operation of one pool.
type guardKey struct{ pool *Pool }

// guard returns ctx marked for the duration of p's token interactions.
func guard(ctx context.Context, p *Pool) context.Context {
	return context.WithValue(ctx, guardKey{pool: p}, struct{}{})
}

// guarded reports whether ctx was handed out by p while p holds its lock. Calls that carry it
// are re-entering p from a token callback.
func guarded(ctx context.Context, p *Pool) bool {
	if ctx == nil {
		return false
	}
	return ctx.Value(guardKey{pool: p}) != nil
}
