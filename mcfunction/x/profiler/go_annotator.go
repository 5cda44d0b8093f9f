// Copyright © 2018 The ELPS authors

package profiler

import (
	"context"
	"runtime/pprof"

	"github.com/luthersystems/sniffer/mcfunction"
)

// pprofAnnotator labels the running goroutine with the current function so
// that CPU profiles taken with pprof can be split by function. It does not
// start pprof itself.
type pprofAnnotator struct {
	profiler
	currentContext context.Context
	contexts       stack[context.Context]
}

var _ mcfunction.Profiler = &pprofAnnotator{}

func NewPprofAnnotator(server *mcfunction.Server, parentContext context.Context, opts ...Option) *pprofAnnotator {
	p := &pprofAnnotator{
		profiler:       profiler{server: server},
		currentContext: parentContext,
	}
	p.profiler.applyConfigs(opts...)
	return p
}

func (p *pprofAnnotator) Enable() error {
	if p.currentContext == nil {
		p.currentContext = context.Background()
	}
	return p.attach(p)
}

func (p *pprofAnnotator) Complete() error {
	pprof.SetGoroutineLabels(context.Background())
	return nil
}

func (p *pprofAnnotator) Start(fn *mcfunction.Function) {
	if p.skipTrace(fn) {
		return
	}
	p.contexts.push(fn, p.currentContext)
	label, _ := p.prettyFunName(fn)
	p.currentContext = pprof.WithLabels(p.currentContext, pprof.Labels("function", label))
	pprof.SetGoroutineLabels(p.currentContext)
}

func (p *pprofAnnotator) End(fn *mcfunction.Function) {
	if p.skipTrace(fn) {
		return
	}
	if parent, ok := p.contexts.pop(fn); ok {
		p.currentContext = parent
		pprof.SetGoroutineLabels(p.currentContext)
	}
}
