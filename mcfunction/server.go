// Copyright © 2018 The ELPS authors

package mcfunction

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultMaxCommandChainLength is the command quota of one run.
const DefaultMaxCommandChainLength = 65536

// Server is the host executing functions. All state changes happen with
// the server lock held: Execute, ExecuteCommand and Tick take it, and
// other goroutines use Invoke to act on the server between them.
type Server struct {
	Library               *Library
	Storage               *Storage
	Scoreboard            *Scoreboard
	MaxCommandChainLength int
	Debugger              Debugger
	Profiler              Profiler
	Output                io.Writer

	mu        sync.Mutex
	frozen    atomic.Bool
	nextRunID atomic.Int64
	entities  []*Entity
	tick      int64
	scheduled []scheduledCall
}

type scheduledCall struct {
	id  ResourceID
	tag bool
	due int64
}

// Option configures a Server.
type Option func(*Server)

// WithDebugger attaches a debugger.
func WithDebugger(d Debugger) Option {
	return func(s *Server) { s.Debugger = d }
}

// WithProfiler attaches a profiler.
func WithProfiler(p Profiler) Option {
	return func(s *Server) { s.Profiler = p }
}

// WithOutput sets where command output is written.
func WithOutput(w io.Writer) Option {
	return func(s *Server) { s.Output = w }
}

// WithMaxCommandChainLength sets the per-run command quota.
func WithMaxCommandChainLength(n int) Option {
	return func(s *Server) { s.MaxCommandChainLength = n }
}

// NewServer returns a server executing the functions of lib.
func NewServer(lib *Library, opts ...Option) *Server {
	if lib == nil {
		lib = NewLibrary()
	}
	s := &Server{
		Library:               lib,
		Storage:               NewStorage(),
		Scoreboard:            NewScoreboard(),
		MaxCommandChainLength: DefaultMaxCommandChainLength,
		Output:                os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) profiler() Profiler {
	if p := s.Profiler; p != nil && p.IsEnabled() {
		return p
	}
	return nil
}

func (s *Server) printf(format string, v ...interface{}) {
	if s.Output == nil {
		return
	}
	fmt.Fprintf(s.Output, format, v...) //nolint:errcheck
}

// Invoke calls fn with the server lock held. fn must not call Execute,
// ExecuteCommand, Tick or Invoke.
func (s *Server) Invoke(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// Freeze stops the tick scheduler. It does not take the server lock so a
// debugger may call it from inside a run.
func (s *Server) Freeze() {
	if !s.frozen.Swap(true) {
		log.Debug("Server frozen")
	}
}

// Unfreeze resumes the tick scheduler.
func (s *Server) Unfreeze() {
	if s.frozen.Swap(false) {
		log.Debug("Server unfrozen")
	}
}

// Frozen reports whether the tick scheduler is stopped.
func (s *Server) Frozen() bool {
	return s.frozen.Load()
}

// Execute runs the function id as src with optional macro arguments. The
// returned run is suspended when the debugger paused it.
func (s *Server) Execute(ctx context.Context, id ResourceID, src CommandSource, args *Compound) (*Run, error) {
	fn, ok := s.Library.Function(id)
	if !ok {
		return nil, errors.Wrap(ErrUnknownFunction, id.String())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r := newRun(ctx, s)
	r.pushBack(invocation(fn, src, args, 1)...)
	_, err := r.Drain()
	return r, err
}

// ExecuteCommand runs a single command as src, the way a command typed at
// the server console runs.
func (s *Server) ExecuteCommand(ctx context.Context, text string, src CommandSource) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := newRun(ctx, s)
	f := &Frame{Source: src}
	r.pushBack(Entry{Kind: ActionCommand, Frame: f, Command: Command{Line: -1, Text: text}})
	_, err := r.Drain()
	return r, err
}

// Load runs the functions of the load tag.
func (s *Server) Load(ctx context.Context) error {
	return s.runTag(ctx, LoadTag)
}

// Reload reads every datapack of the library again and runs the load tag.
// A debugger implementing Reloader drops its state first, so breakpoints
// and suspended runs never refer to replaced functions.
func (s *Server) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.Library.Reload()
	if r, ok := s.Debugger.(Reloader); ok {
		r.OnReload()
	}
	if err != nil {
		return err
	}
	log.WithField("functions", len(s.Library.IDs())).Info("Reloaded datapacks")
	ids := s.Library.ExpandTag(LoadTag)
	if len(ids) == 0 {
		return nil
	}
	return s.runFunctions(ctx, ids)
}

func (s *Server) runTag(ctx context.Context, tag ResourceID) error {
	ids := s.Library.ExpandTag(tag)
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runFunctions(ctx, ids)
}

// runFunctions executes ids one after the other in a single run.
func (s *Server) runFunctions(ctx context.Context, ids []ResourceID) error {
	r := newRun(ctx, s)
	for _, id := range ids {
		fn, ok := s.Library.Function(id)
		if !ok {
			log.WithField("function", id.String()).Warn("Tag references unknown function")
			continue
		}
		r.pushBack(invocation(fn, ServerSource(), nil, 1)...)
	}
	_, err := r.Drain()
	return err
}

// Schedule queues function id to run after delay ticks.
func (s *Server) Schedule(id ResourceID, delay int64) {
	s.schedule(scheduledCall{id: id, due: s.tick + delay})
}

func (s *Server) schedule(c scheduledCall) {
	for i, pending := range s.scheduled {
		if pending.id == c.id && pending.tag == c.tag {
			s.scheduled[i] = c
			return
		}
	}
	s.scheduled = append(s.scheduled, c)
}

// Tick advances the game by one tick: due scheduled functions run, then the
// tick tag. A frozen server does not tick and Tick returns false.
func (s *Server) Tick(ctx context.Context) (bool, error) {
	if s.Frozen() {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Frozen() {
		return false, nil
	}
	s.tick++
	var due []ResourceID
	pending := s.scheduled[:0]
	for _, c := range s.scheduled {
		if c.due > s.tick {
			pending = append(pending, c)
			continue
		}
		if c.tag {
			due = append(due, s.Library.ExpandTag(c.id)...)
		} else {
			due = append(due, c.id)
		}
	}
	s.scheduled = pending
	due = append(due, s.Library.ExpandTag(TickTag)...)
	if len(due) == 0 {
		return true, nil
	}
	return true, s.runFunctions(ctx, due)
}

// Serve ticks the server every interval until ctx is done.
func (s *Server) Serve(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				log.WithError(err).Warn("Tick failed")
			}
		}
	}
}

// Entities returns the summoned entities.
func (s *Server) Entities() []*Entity {
	return append([]*Entity(nil), s.entities...)
}

// Summon adds an entity to the world.
func (s *Server) Summon(e *Entity) {
	if e.World == "" {
		e.World = DefaultWorld
	}
	s.entities = append(s.entities, e)
}
