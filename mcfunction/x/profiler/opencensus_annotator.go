// Copyright © 2018 The ELPS authors

package profiler

import (
	"context"

	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
)

var _ mcfunction.Profiler = &ocAnnotator{}

type ocAnnotator struct {
	profiler
	currentContext context.Context
	currentSpan    *trace.Span
	contexts       stack[context.Context]
}

// NewOpenCensusAnnotator returns a profiler that starts an OpenCensus span
// for each function invocation.
func NewOpenCensusAnnotator(server *mcfunction.Server, parentContext context.Context, opts ...Option) *ocAnnotator {
	p := &ocAnnotator{
		profiler:       profiler{server: server},
		currentContext: parentContext,
	}
	p.applyConfigs(opts...)
	return p
}

// EnableWithContext enables the annotator with ctx as the parent of every
// span.
func (p *ocAnnotator) EnableWithContext(ctx context.Context) error {
	if ctx == nil {
		return errors.New("set a context to use this function")
	}
	p.currentContext = ctx
	return p.Enable()
}

func (p *ocAnnotator) Enable() error {
	if p.currentContext == nil {
		return errors.New("we can only append spans to a context that is linked to opencensus")
	}
	return p.attach(p)
}

func (p *ocAnnotator) Complete() error {
	for p.contexts.len() > 0 {
		p.currentSpan.End()
		p.currentContext = p.contexts.popTop()
		p.currentSpan = trace.FromContext(p.currentContext)
	}
	return nil
}

func (p *ocAnnotator) Start(fn *mcfunction.Function) {
	if p.skipTrace(fn) {
		return
	}
	label, _ := p.prettyFunName(fn)
	p.contexts.push(fn, p.currentContext)
	p.currentContext, p.currentSpan = trace.StartSpan(p.currentContext, label)
}

func (p *ocAnnotator) End(fn *mcfunction.Function) {
	if p.skipTrace(fn) {
		return
	}
	parent, ok := p.contexts.pop(fn)
	if !ok {
		return
	}
	p.currentSpan.Annotate([]trace.Attribute{
		trace.StringAttribute("file", fn.Location.String()),
		trace.Int64Attribute("line", int64(firstLine(fn))),
	}, "source")
	p.currentSpan.End()
	p.currentContext = parent
	p.currentSpan = trace.FromContext(p.currentContext)
}
