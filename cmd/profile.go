// Copyright © 2018 The ELPS authors

package cmd

import (
	"context"
	"os"
	"runtime/pprof"

	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/luthersystems/sniffer/mcfunction/x/profiler"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.opencensus.io/trace"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Profile kinds accepted by --profile.
const (
	profileOpenTelemetry = "otel"
	profileOpenCensus    = "opencensus"
	profilePprof         = "pprof"
	profileCallgrind     = "callgrind"
)

var profileKinds = []string{profileOpenTelemetry, profileOpenCensus, profilePprof, profileCallgrind}

// startProfiler attaches a profiler of the given kind to srv. The returned
// function completes the profile and must be called once the run is over.
// Trace spans are logged at info level; pprof and callgrind profiles are
// written to file.
func startProfiler(ctx context.Context, srv *mcfunction.Server, kind, file string, opts ...profiler.Option) (func() error, error) {
	switch kind {
	case "":
		return func() error { return nil }, nil
	case profileOpenTelemetry:
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(&logSpanExporter{}))
		otel.SetTracerProvider(tp)
		p := profiler.NewOpenTelemetryAnnotator(srv, ctx, opts...)
		if err := p.Enable(); err != nil {
			return nil, err
		}
		return func() error {
			if err := p.Complete(); err != nil {
				return err
			}
			return tp.Shutdown(ctx)
		}, nil
	case profileOpenCensus:
		exporter := &logSpanExporter{}
		trace.RegisterExporter(exporter)
		trace.ApplyConfig(trace.Config{DefaultSampler: trace.AlwaysSample()})
		p := profiler.NewOpenCensusAnnotator(srv, ctx, opts...)
		if err := p.Enable(); err != nil {
			trace.UnregisterExporter(exporter)
			return nil, err
		}
		return func() error {
			defer trace.UnregisterExporter(exporter)
			return p.Complete()
		}, nil
	case profilePprof:
		if file == "" {
			file = "cpu.pprof"
		}
		f, err := os.Create(file) //nolint:gosec // user-specified output file
		if err != nil {
			return nil, errors.Wrap(err, "profile")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close() //nolint:errcheck,gosec
			return nil, errors.Wrap(err, "profile")
		}
		p := profiler.NewPprofAnnotator(srv, ctx, opts...)
		if err := p.Enable(); err != nil {
			pprof.StopCPUProfile()
			f.Close() //nolint:errcheck,gosec
			return nil, err
		}
		return func() error {
			err := p.Complete()
			pprof.StopCPUProfile()
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			log.WithField("file", file).Info("CPU profile written")
			return err
		}, nil
	case profileCallgrind:
		if file == "" {
			file = "callgrind.out"
		}
		p := profiler.NewCallgrindProfiler(srv, opts...)
		if err := p.SetFile(file); err != nil {
			return nil, err
		}
		if err := p.Enable(); err != nil {
			return nil, err
		}
		return func() error {
			if err := p.Complete(); err != nil {
				return err
			}
			log.WithField("file", file).Info("Callgrind profile written")
			return nil
		}, nil
	default:
		return nil, errors.Errorf("unknown profile kind %q (want one of %v)", kind, profileKinds)
	}
}

// logSpanExporter logs finished spans of either tracing library.
type logSpanExporter struct{}

var (
	_ sdktrace.SpanExporter = &logSpanExporter{}
	_ trace.Exporter        = &logSpanExporter{}
)

func (e *logSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		fields := log.Fields{
			"span":     s.Name(),
			"duration": s.EndTime().Sub(s.StartTime()).String(),
			"trace":    s.SpanContext().TraceID().String(),
		}
		if parent := s.Parent(); parent.IsValid() {
			fields["parent"] = parent.SpanID().String()
		}
		log.WithFields(fields).Info("Span finished")
	}
	return nil
}

func (e *logSpanExporter) Shutdown(ctx context.Context) error {
	return nil
}

func (e *logSpanExporter) ExportSpan(s *trace.SpanData) {
	log.WithFields(log.Fields{
		"span":     s.Name,
		"duration": s.EndTime.Sub(s.StartTime).String(),
		"trace":    s.TraceID.String(),
	}).Info("Span finished")
}
