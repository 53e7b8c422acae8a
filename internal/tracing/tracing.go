// Package tracing provides a thin span-start helper over opentracing, kept
// optional the same way the validator service treats it: a nil global
// tracer means StartSpan is a no-op, so components and their tests don't
// need a collector wired up.
package tracing

import (
	"context"

	opentracing "github.com/opentracing/opentracing-go"
)

// Start begins a span named operation, returning the (possibly no-op) span
// and a context carrying it. Call span.Finish() when the operation ends.
func Start(ctx context.Context, operation string) (opentracing.Span, context.Context) {
	if opentracing.GlobalTracer() == nil {
		return opentracing.NoopTracer{}.StartSpan(operation), ctx
	}
	span, ctx := opentracing.StartSpanFromContext(ctx, operation)
	return span, ctx
}
