// Copyright © 2018 The ELPS authors

// Package profiler provides mcfunction.Profiler implementations. Each
// annotator observes function invocations of a server and reports them to
// a tracing backend or a profile file.
package profiler

import (
	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/pkg/errors"
)

// profiler holds the settings shared by every annotator.
type profiler struct {
	server     *mcfunction.Server
	enabled    bool
	skipFilter SkipFilter
	funLabeler FunLabeler
}

// Option configures an annotator.
type Option func(*profiler)

func (p *profiler) applyConfigs(opts ...Option) {
	for _, opt := range opts {
		opt(p)
	}
}

func (p *profiler) IsEnabled() bool {
	return p.enabled
}

// attach installs impl as the profiler of the server and marks it enabled.
func (p *profiler) attach(impl mcfunction.Profiler) error {
	if p.enabled {
		return errors.New("profiler already enabled")
	}
	if p.server != nil {
		p.server.Profiler = impl
	}
	p.enabled = true
	return nil
}

// prettyFunName returns the span label of fn and its id. The label is the
// id unless a labeler provides another name.
func (p *profiler) prettyFunName(fn *mcfunction.Function) (string, string) {
	name := fn.ID.String()
	label := name
	if p.funLabeler != nil {
		if l := p.funLabeler(fn); l != "" {
			label = l
		}
	}
	return label, name
}

// skipTrace reports whether fn is not observed.
func (p *profiler) skipTrace(fn *mcfunction.Function) bool {
	return !p.enabled || fn == nil || p.skipFilter != nil && p.skipFilter(fn)
}

// stack tracks values pushed at function entry so that the matching exit
// can restore them. Skipped functions push nothing, so entries are keyed by
// function to keep enter and exit paired.
type stack[T any] struct {
	items []stackItem[T]
}

type stackItem[T any] struct {
	fn    *mcfunction.Function
	value T
}

func (s *stack[T]) push(fn *mcfunction.Function, v T) {
	s.items = append(s.items, stackItem[T]{fn: fn, value: v})
}

// pop removes the top item if it belongs to fn.
func (s *stack[T]) pop(fn *mcfunction.Function) (T, bool) {
	var zero T
	n := len(s.items)
	if n == 0 || s.items[n-1].fn != fn {
		return zero, false
	}
	it := s.items[n-1]
	s.items = s.items[:n-1]
	return it.value, true
}

// popTop removes the top item regardless of its function. The stack must
// not be empty.
func (s *stack[T]) popTop() T {
	it := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return it.value
}

func (s *stack[T]) len() int {
	return len(s.items)
}
