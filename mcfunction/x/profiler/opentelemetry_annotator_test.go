// Copyright © 2018 The ELPS authors

package profiler_test

import (
	"context"
	"testing"

	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/luthersystems/sniffer/mcfunction/x/profiler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var testSources = map[string]string{
	"ns:main":   "# entry point\n# @trace{Main Entry}\nfunction ns:helper\nfunction ns:helper\nsay done",
	"ns:helper": "say hi",
}

func newServer(t *testing.T) *mcfunction.Server {
	t.Helper()
	lib := mcfunction.NewLibrary()
	for id, text := range testSources {
		_, err := lib.AddSource(mcfunction.MustParseResourceID(id), text)
		require.NoError(t, err)
	}
	return mcfunction.NewServer(lib)
}

func execute(t *testing.T, srv *mcfunction.Server, id string) {
	t.Helper()
	run, err := srv.Execute(context.Background(), mcfunction.MustParseResourceID(id), mcfunction.ServerSource(), nil)
	require.NoError(t, err)
	require.Equal(t, mcfunction.RunCompleted, run.Status())
}

func newExporter(t *testing.T) *tracetest.InMemoryExporter {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(
		trace.WithSyncer(exporter),
		trace.WithSampler(trace.AlwaysSample()),
	)
	t.Cleanup(func() {
		err := tp.Shutdown(context.Background())
		assert.NoError(t, err, "TracerProvider shutdown")
	})
	otel.SetTracerProvider(tp)
	return exporter
}

func attr(attrs []attribute.KeyValue, key attribute.Key) attribute.Value {
	for _, kv := range attrs {
		if kv.Key == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

func TestNewOpenTelemetryAnnotator(t *testing.T) {
	exporter := newExporter(t)
	srv := newServer(t)
	ppa := profiler.NewOpenTelemetryAnnotator(srv, context.Background())
	require.NoError(t, ppa.Enable())
	assert.Same(t, ppa, srv.Profiler)
	assert.Error(t, ppa.Enable())

	execute(t, srv, "ns:main")
	assert.NoError(t, ppa.Complete())

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)
	assert.Equal(t, "ns:helper", spans[0].Name)
	assert.Equal(t, "ns:helper", spans[1].Name)
	assert.Equal(t, "ns:main", spans[2].Name)

	main := spans[2]
	for _, s := range spans[:2] {
		assert.Equal(t, main.SpanContext.SpanID(), s.Parent.SpanID())
		assert.Equal(t, main.SpanContext.TraceID(), s.SpanContext.TraceID())
	}
	assert.False(t, main.Parent.IsValid())
	assert.Equal(t, "ns", attr(main.Attributes, "code.namespace").AsString())
	assert.Equal(t, "ns:main", attr(main.Attributes, "code.function").AsString())
	assert.Equal(t, "data/ns/function/main.mcfunction", attr(main.Attributes, "code.filepath").AsString())
	assert.Equal(t, int64(3), attr(main.Attributes, "code.lineno").AsInt64())
}

func TestNewOpenTelemetryAnnotatorSkip(t *testing.T) {
	exporter := newExporter(t)
	srv := newServer(t)
	ppa := profiler.NewOpenTelemetryAnnotator(srv, context.Background(),
		profiler.WithDocFilter(),
		profiler.WithDocLabeler())
	require.NoError(t, ppa.Enable())

	execute(t, srv, "ns:main")
	assert.NoError(t, ppa.Complete())

	spans := exporter.GetSpans()
	require.Len(t, spans, 1, "Expected selective spans")
	assert.Equal(t, "Main_Entry", spans[0].Name, "Expected custom label")
	assert.Equal(t, "ns:main", attr(spans[0].Attributes, "code.function").AsString())
}

func TestOpenTelemetryAnnotatorCompleteEndsOpenSpans(t *testing.T) {
	exporter := newExporter(t)
	srv := newServer(t)
	ppa := profiler.NewOpenTelemetryAnnotator(srv, context.Background())
	require.NoError(t, ppa.Enable())

	fn, ok := srv.Library.Function(mcfunction.MustParseResourceID("ns:main"))
	require.True(t, ok)
	ppa.Start(fn)
	assert.Empty(t, exporter.GetSpans())
	assert.NoError(t, ppa.Complete())
	require.Len(t, exporter.GetSpans(), 1)
}

func TestOpenTelemetryAnnotatorNeedsContext(t *testing.T) {
	srv := newServer(t)
	ppa := profiler.NewOpenTelemetryAnnotator(srv, nil) //nolint:staticcheck
	assert.Error(t, ppa.Enable())
	assert.Nil(t, srv.Profiler)
}
