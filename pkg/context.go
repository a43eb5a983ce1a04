package pkg

import "context"

type ctxKey string

const traceCtxKey = ctxKey(TraceId)

// WithTraceID returns a copy of ctx carrying the request trace id.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceCtxKey, traceID)
}

// TraceIDFromContext returns the trace id set by WithTraceID, or "".
func TraceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(traceCtxKey).(string)
	return id
}
