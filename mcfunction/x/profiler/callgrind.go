// Copyright © 2018 The ELPS authors

package profiler

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/pkg/errors"
)

// errWriter wraps an io.Writer and captures the first write error,
// short-circuiting subsequent writes after a failure.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

// callgrindProfiler writes a Callgrind profile of function invocations.
// The result can be opened in KCacheGrind or QCacheGrind. Costs are wall
// time in nanoseconds and executed commands.
type callgrindProfiler struct {
	profiler
	sync.Mutex
	writer    io.Writer
	closer    io.Closer
	writeErr  error
	startTime time.Time
	refs      map[string]int
	current   *callRef
}

var _ mcfunction.Profiler = &callgrindProfiler{}

// NewCallgrindProfiler returns a Callgrind profiler for server. An output
// must be set with SetFile or SetWriter before it is enabled.
func NewCallgrindProfiler(server *mcfunction.Server, opts ...Option) *callgrindProfiler {
	p := &callgrindProfiler{profiler: profiler{server: server}}
	p.applyConfigs(opts...)
	return p
}

// callRef is one invocation on the profiled call stack.
type callRef struct {
	fn       *mcfunction.Function
	name     string
	file     string
	line     int
	start    time.Time
	duration time.Duration
	commands int
	prev     *callRef
	children []*callRef
}

func (p *callgrindProfiler) SetFile(filename string) error {
	f, err := os.Create(filename) //#nosec G304
	if err != nil {
		return errors.Wrap(err, "callgrind output")
	}
	if err := p.SetWriter(f); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	p.closer = f
	return nil
}

func (p *callgrindProfiler) SetWriter(w io.Writer) error {
	p.Lock()
	defer p.Unlock()
	if p.enabled {
		return errors.New("profiler already enabled")
	}
	p.writer = w
	return nil
}

func (p *callgrindProfiler) Enable() error {
	p.Lock()
	if p.writer == nil {
		p.Unlock()
		return errors.New("no output set in profiler")
	}
	w := &errWriter{w: p.writer}
	w.printf("version: 1\ncreator: sniffer (Go %s)\n", runtime.Version())
	w.printf("cmd: Execute\npart: 1\npositions: line\n\n")
	w.printf("events: Time_(ns) Commands\n\n")
	if w.err != nil {
		p.Unlock()
		return w.err
	}
	p.startTime = time.Now()
	p.refs = make(map[string]int)
	p.current = &callRef{name: "ENTRYPOINT", file: "-", start: p.startTime}
	p.Unlock()
	return p.attach(p)
}

func (p *callgrindProfiler) getRef(name string) string {
	if ref, ok := p.refs[name]; ok {
		return fmt.Sprintf("(%d)", ref)
	}
	ref := len(p.refs) + 1
	p.refs[name] = ref
	return fmt.Sprintf("(%d) %s", ref, name)
}

func (p *callgrindProfiler) Start(fn *mcfunction.Function) {
	if p.skipTrace(fn) {
		return
	}
	p.Lock()
	defer p.Unlock()
	label, _ := p.prettyFunName(fn)
	ref := &callRef{
		fn:       fn,
		name:     label,
		file:     fn.Location.String(),
		line:     firstLine(fn),
		start:    time.Now(),
		commands: len(fn.Commands),
		prev:     p.current,
	}
	p.current.children = append(p.current.children, ref)
	p.current = ref
}

func (p *callgrindProfiler) End(fn *mcfunction.Function) {
	if p.skipTrace(fn) {
		return
	}
	p.Lock()
	defer p.Unlock()
	ref := p.current
	if ref.fn != fn || ref.prev == nil {
		return
	}
	ref.duration = time.Since(ref.start)
	if ref.duration == 0 {
		ref.duration = 1
	}
	p.current = ref.prev
	p.writeRef(ref)
}

// writeRef writes the cost block of ref followed by its calls.
func (p *callgrindProfiler) writeRef(ref *callRef) {
	if p.writeErr != nil {
		return
	}
	w := &errWriter{w: p.writer}
	w.printf("fl=%s\n", p.getRef(ref.file))
	w.printf("fn=%s\n", p.getRef(ref.name))
	w.printf("%d %d %d\n", ref.line, ref.duration.Nanoseconds(), ref.commands)
	for _, c := range ref.children {
		w.printf("cfl=%s\n", p.getRef(c.file))
		w.printf("cfn=%s\n", p.getRef(c.name))
		w.printf("calls=1 %d\n", c.line)
		w.printf("%d %d %d\n", ref.line, c.duration.Nanoseconds(), c.commands)
	}
	w.printf("\n")
	p.writeErr = w.err
}

// Complete closes the invocations still open, writes the entry point and
// summary, and closes the output file.
func (p *callgrindProfiler) Complete() error {
	p.Lock()
	defer p.Unlock()
	if p.current == nil {
		return errors.New("profiler not enabled")
	}
	for p.current.prev != nil {
		ref := p.current
		ref.duration = time.Since(ref.start)
		p.current = ref.prev
		p.writeRef(ref)
	}
	root := p.current
	root.duration = time.Since(root.start)
	p.writeRef(root)
	w := &errWriter{w: p.writer}
	w.printf("summary %d %d\n\n", root.duration.Nanoseconds(), commandTotal(root))
	p.enabled = false
	if p.writeErr != nil {
		return p.writeErr
	}
	if w.err != nil {
		return w.err
	}
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}

func commandTotal(ref *callRef) int {
	n := ref.commands
	for _, c := range ref.children {
		n += commandTotal(c)
	}
	return n
}
