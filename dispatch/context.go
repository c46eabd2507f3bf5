package dispatch

import "context"

type connectionIDKey struct{}

// WithConnectionID returns a context carrying the id of the connection a
// frame arrived on.
func WithConnectionID(ctx context.Context, id uint32) context.Context {
	return context.WithValue(ctx, connectionIDKey{}, id)
}

// ConnectionIDFromContext returns the connection id stored by
// WithConnectionID.
func ConnectionIDFromContext(ctx context.Context) (uint32, bool) {
	id, ok := ctx.Value(connectionIDKey{}).(uint32)
	return id, ok
}
