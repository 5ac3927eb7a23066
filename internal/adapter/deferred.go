package adapter

import "context"

// Deferred is a value whose computation is postponed until the response is
// assembled. Accessors may return one; the adapter passes it through and the
// engine resolves it before serialization.
type Deferred struct {
	resolve  func(ctx context.Context) (any, error)
	resolved bool
	value    any
	err      error
}

// Defer wraps fn as a deferred value
func Defer(fn func(ctx context.Context) (any, error)) *Deferred {
	return &Deferred{resolve: fn}
}

// Resolve computes the value on first call and returns the cached result on
// later calls
func (d *Deferred) Resolve(ctx context.Context) (any, error) {
	if !d.resolved {
		d.value, d.err = d.resolve(ctx)
		d.resolved = true
	}
	return d.value, d.err
}

// Resolve returns v, resolving it first when it is a *Deferred
func Resolve(ctx context.Context, v any) (any, error) {
	if d, ok := v.(*Deferred); ok {
		return d.Resolve(ctx)
	}
	return v, nil
}
