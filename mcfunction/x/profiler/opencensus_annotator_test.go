// Copyright © 2018 The ELPS authors

package profiler_test

import (
	"context"
	"sync"
	"testing"

	"github.com/luthersystems/sniffer/mcfunction/x/profiler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opencensus.io/trace"
)

// spanCollector is an OpenCensus exporter keeping every span in memory.
type spanCollector struct {
	mu    sync.Mutex
	spans []*trace.SpanData
}

func (c *spanCollector) ExportSpan(sd *trace.SpanData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spans = append(c.spans, sd)
}

func (c *spanCollector) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, sd := range c.spans {
		out = append(out, sd.Name)
	}
	return out
}

func TestNewOpenCensusAnnotator(t *testing.T) {
	trace.ApplyConfig(trace.Config{DefaultSampler: trace.AlwaysSample()})
	exporter := &spanCollector{}
	trace.RegisterExporter(exporter)
	t.Cleanup(func() { trace.UnregisterExporter(exporter) })

	srv := newServer(t)
	ppa := profiler.NewOpenCensusAnnotator(srv, context.Background())
	require.NoError(t, ppa.Enable())
	execute(t, srv, "ns:main")
	assert.NoError(t, ppa.Complete())

	assert.Equal(t, []string{"ns:helper", "ns:helper", "ns:main"}, exporter.names())
	exporter.mu.Lock()
	defer exporter.mu.Unlock()
	main := exporter.spans[2]
	assert.Equal(t, main.SpanID, exporter.spans[0].ParentSpanID)
	require.Len(t, main.Annotations, 1)
	assert.Equal(t, "source", main.Annotations[0].Message)
	assert.Equal(t, "data/ns/function/main.mcfunction", main.Annotations[0].Attributes["file"])
	assert.Equal(t, int64(3), main.Annotations[0].Attributes["line"])
}

func TestOpenCensusAnnotatorEnableWithContext(t *testing.T) {
	srv := newServer(t)
	ppa := profiler.NewOpenCensusAnnotator(srv, nil) //nolint:staticcheck
	assert.Error(t, ppa.Enable())
	assert.Error(t, ppa.EnableWithContext(nil)) //nolint:staticcheck
	require.NoError(t, ppa.EnableWithContext(context.Background()))
	assert.True(t, ppa.IsEnabled())
	assert.Same(t, ppa, srv.Profiler)
}
