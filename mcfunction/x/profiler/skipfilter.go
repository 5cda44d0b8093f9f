// Copyright © 2018 The ELPS authors

package profiler

import (
	"regexp"

	"github.com/luthersystems/sniffer/mcfunction"
)

// SkipFilter reports whether a function should not be traced.
type SkipFilter func(fn *mcfunction.Function) bool

// WithSkipFilter sets the filter for tracing spans.
func WithSkipFilter(skipFilter SkipFilter) Option {
	return func(p *profiler) {
		p.skipFilter = skipFilter
	}
}

// WithDocFilter only traces functions whose header comment contains
// DocTrace.
func WithDocFilter() Option {
	return WithSkipFilter(docSkipFilter)
}

// WithNamespaceFilter only traces functions in the given namespaces.
func WithNamespaceFilter(namespaces ...string) Option {
	keep := make(map[string]bool, len(namespaces))
	for _, ns := range namespaces {
		keep[ns] = true
	}
	return WithSkipFilter(func(fn *mcfunction.Function) bool {
		return !keep[fn.ID.Namespace]
	})
}

// DocTrace is a magic string used to enable tracing in a profiler
// configured WithDocFilter.
const DocTrace = "@trace"

var docTraceRegExp = regexp.MustCompile(DocTrace)

func docSkipFilter(fn *mcfunction.Function) bool {
	doc := fn.Doc()
	if doc == "" {
		return true
	}
	return !docTraceRegExp.MatchString(doc)
}
