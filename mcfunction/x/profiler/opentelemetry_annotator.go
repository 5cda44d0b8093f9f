// Copyright © 2018 The ELPS authors

package profiler

import (
	"context"

	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// contextKey is the type of context keys defined by this package.
type contextKey string

const (
	// ContextOpenTelemetryTracerKey looks up a parent tracer name from a context key.
	ContextOpenTelemetryTracerKey contextKey = "otelParentTracer"
)

var _ mcfunction.Profiler = &otelAnnotator{}

type otelAnnotator struct {
	profiler
	currentContext context.Context
	currentSpan    trace.Span
	contexts       stack[context.Context]
}

// NewOpenTelemetryAnnotator returns a profiler that opens one span per
// function invocation under parentContext.
func NewOpenTelemetryAnnotator(server *mcfunction.Server, parentContext context.Context, opts ...Option) *otelAnnotator {
	p := &otelAnnotator{
		profiler:       profiler{server: server},
		currentContext: parentContext,
	}
	p.profiler.applyConfigs(opts...)
	return p
}

func (p *otelAnnotator) Enable() error {
	if p.currentContext == nil {
		return errors.New("we can only append spans to a context that is linked to opentelemetry")
	}
	return p.attach(p)
}

// Complete ends every span still open, innermost first.
func (p *otelAnnotator) Complete() error {
	for p.contexts.len() > 0 {
		p.currentSpan.End()
		p.currentContext = p.contexts.popTop()
		p.currentSpan = trace.SpanFromContext(p.currentContext)
	}
	return nil
}

func contextTracer(ctx context.Context) trace.Tracer {
	tracerName, ok := ctx.Value(ContextOpenTelemetryTracerKey).(string)
	if !ok {
		tracerName = "mcfunction"
	}
	return otel.GetTracerProvider().Tracer(tracerName)
}

func (p *otelAnnotator) Start(fn *mcfunction.Function) {
	if p.skipTrace(fn) {
		return
	}
	p.contexts.push(fn, p.currentContext)
	prettyLabel, funName := p.prettyFunName(fn)
	p.currentContext, p.currentSpan = contextTracer(p.currentContext).Start(p.currentContext, prettyLabel)
	p.addCodeAttributes(fn, funName)
}

func (p *otelAnnotator) End(fn *mcfunction.Function) {
	if p.skipTrace(fn) {
		return
	}
	parent, ok := p.contexts.pop(fn)
	if !ok {
		return
	}
	p.currentSpan.End()
	p.currentContext = parent
	p.currentSpan = trace.SpanFromContext(p.currentContext)
}

func (p *otelAnnotator) addCodeAttributes(fn *mcfunction.Function, funName string) {
	attrs := []attribute.KeyValue{
		semconv.CodeNamespace(fn.ID.Namespace),
		semconv.CodeFunction(funName),
		attribute.Int("mcfunction.commands", len(fn.Commands)),
	}
	if loc := fn.Location.String(); loc != "" {
		attrs = append(attrs,
			semconv.CodeFilepath(loc),
			semconv.CodeLineNumber(firstLine(fn)),
		)
	}
	p.currentSpan.SetAttributes(attrs...)
}

// firstLine returns the 1-based line of fn's first command.
func firstLine(fn *mcfunction.Function) int {
	if len(fn.Commands) == 0 {
		return 1
	}
	return fn.Commands[0].Line + 1
}
