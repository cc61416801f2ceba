// Package tracing wraps opentracing-go/jaeger-client-go behind the same
// tracing.Start(ctx, name) tracing.Span call shape the teacher's own internal
// tracing package exposes (observed at its call sites, e.g.
// services/validator/Validator.go's "traceSpan := tracing.Start(ctx, ...)");
// that package itself was never part of the retrieval pack, so this is a
// fresh implementation against the teacher's own jaeger/opentracing stack
// rather than an adapted file.
package tracing

import (
	"context"
	"io"

	"github.com/opentracing/opentracing-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
)

// Span bundles a started opentracing.Span with the context carrying it, the
// same pairing the teacher's call sites destructure via traceSpan.Ctx.
type Span struct {
	Ctx  context.Context
	span opentracing.Span
}

// Start begins a child span named name, parented to any span already in ctx.
func Start(ctx context.Context, name string) Span {
	span, spanCtx := opentracing.StartSpanFromContext(ctx, name)
	return Span{Ctx: spanCtx, span: span}
}

// Finish closes the span. Call via defer at the end of the traced scope.
func (s Span) Finish() {
	if s.span != nil {
		s.span.Finish()
	}
}

// SetTag attaches a key/value tag, e.g. the block hash or height being
// processed.
func (s Span) SetTag(key string, value interface{}) Span {
	if s.span != nil {
		s.span.SetTag(key, value)
	}
	return s
}

// LogError records err on the span, if non-nil.
func (s Span) LogError(err error) {
	if s.span != nil && err != nil {
		s.span.SetTag("error", true)
		s.span.LogKV("event", "error", "message", err.Error())
	}
}

// InitGlobalTracer installs a Jaeger tracer as the process-wide
// opentracing.GlobalTracer, sampling every trace (consistent with a single
// full-node process rather than a high-QPS service mesh). Returns an
// io.Closer to flush on shutdown; callers that skip calling InitGlobalTracer
// get opentracing's no-op tracer, so Start/Finish/SetTag remain safe no-ops.
func InitGlobalTracer(serviceName string) (io.Closer, error) {
	cfg := jaegercfg.Configuration{
		ServiceName: serviceName,
		Sampler: &jaegercfg.SamplerConfig{
			Type:  "const",
			Param: 1,
		},
		Reporter: &jaegercfg.ReporterConfig{
			LogSpans: false,
		},
	}

	tracer, closer, err := cfg.NewTracer()
	if err != nil {
		return nil, err
	}

	opentracing.SetGlobalTracer(tracer)
	return closer, nil
}
