package logger

import "context"

// ctxKey is unexported so no other package can collide with these keys.
type ctxKey int

const (
	requestIDKey ctxKey = iota
	runIDKey
)

// WithRequestID stamps the API request id onto the context. The HTTP
// middleware sets it so handler logs can be correlated per request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id stamped on the context, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithRunID stamps the run id onto the context. The engine sets it at the
// top of Execute so logs emitted deep inside tool dispatch can be tied back
// to the run that triggered them.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunID returns the run id stamped on the context, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}
