package sessionkit

import "context"

type requestIDContextKey struct{}
type originContextKey struct{}

// WithRequestID attaches a caller-supplied correlation ID to ctx. The
// Engine stamps it on the outbound request and on audit events instead
// of generating one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// WithOrigin attaches a logical origin label to ctx. It is recorded in
// audit event detail for operators tracing which surface issued a
// call.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originContextKey{}, origin)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

func originFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	origin, _ := ctx.Value(originContextKey{}).(string)
	return origin
}
