// Copyright © 2018 The ELPS authors

// Package debugrepl provides an interactive debug console on top of
// repl.Run and a debugger.Session. It offers the commands of the in-game
// breakpoint command; any other line runs as a server command.
package debugrepl

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/luthersystems/sniffer/mcfunction/x/debugger"
	"github.com/luthersystems/sniffer/mcfunction/x/watcher"
	"github.com/luthersystems/sniffer/repl"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Option configures the debug console.
type Option func(*debugHandler)

// WithStdin sets the reader for console input. This is primarily useful
// for testing, where a pipe replaces the terminal.
func WithStdin(r io.ReadCloser) Option {
	return func(h *debugHandler) {
		h.stdin = r
	}
}

// WithStderr sets the writer for console output.
func WithStderr(w io.Writer) Option {
	return func(h *debugHandler) {
		h.stderr = w
	}
}

// WithWidth sets the column at which long values and help are wrapped.
func WithWidth(width int) Option {
	return func(h *debugHandler) {
		h.width = width
	}
}

// WithReplOptions passes opts to the underlying console.
func WithReplOptions(opts ...repl.Option) Option {
	return func(h *debugHandler) {
		h.replOpts = append(h.replOpts, opts...)
	}
}

// Run starts the debug console for srv. sess must be srv's debugger. Run
// returns when input ends or the quit command is given; a paused run is
// resumed before returning.
func Run(ctx context.Context, srv *mcfunction.Server, sess *debugger.Session, opts ...Option) error {
	h := &debugHandler{
		ctx:    ctx,
		srv:    srv,
		sess:   sess,
		stderr: os.Stderr,
		width:  80,
		doneCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	unsubscribe := sess.Subscribe(h)
	defer unsubscribe()

	err := repl.Run(ctx, srv, "> ", h.replOptions()...)
	h.stopWatch()
	srv.Invoke(func() {
		if sess.Debugging() || sess.Suspended() > 0 {
			sess.Continue()
		}
	})
	return err
}

// debugHandler holds the state of one debug console.
type debugHandler struct {
	ctx      context.Context
	srv      *mcfunction.Server
	sess     *debugger.Session
	stdin    io.ReadCloser
	stderr   io.Writer
	width    int
	replOpts []repl.Option
	doneCh   chan struct{}
	quitOnce sync.Once

	mu      sync.Mutex
	lastCmd string
	watch   *watcher.Watcher
}

var _ debugger.OutputListener = (*debugHandler)(nil)

func (h *debugHandler) replOptions() []repl.Option {
	opts := []repl.Option{
		repl.WithStderr(h.stderr),
		repl.WithLineHandler(h.handleLine),
		repl.WithCompleter(&debugCompleter{lib: h.srv.Library}),
		repl.WithPromptFunc(h.prompt),
		repl.WithInterruptFunc(h.onInterrupt),
		repl.WithDoneCh(h.doneCh),
	}
	if h.stdin != nil {
		opts = append(opts, repl.WithStdin(h.stdin))
	}
	return append(opts, h.replOpts...)
}

// OnStop is called with the server lock held, so the call stack can be
// read directly.
func (h *debugHandler) OnStop(breakpointID int, reason debugger.StopReason) error {
	banner := "stopped: " + string(reason)
	if breakpointID > 0 {
		banner = fmt.Sprintf("stopped: breakpoint %d", breakpointID)
	}
	h.println(banner)
	sc := h.sess.CallStack().Current()
	if sc == nil {
		return nil
	}
	fn, ok := h.srv.Library.Function(sc.Function)
	if !ok {
		h.printf("  at %v:%d (source not available)\n", sc.Function, sc.Line+1)
		return nil
	}
	showSourceContext(h.stderr, fn, sc.Line)
	return nil
}

func (h *debugHandler) OnContinue() error {
	log.Debug("Console resumed execution")
	return nil
}

func (h *debugHandler) OnShutdown() error {
	h.quit()
	return nil
}

func (h *debugHandler) OnOutput(category, text string) error {
	h.printf("%s", text)
	return nil
}

func (h *debugHandler) prompt() string {
	var paused bool
	h.srv.Invoke(func() { paused = h.sess.Debugging() && h.sess.Suspended() > 0 })
	if paused {
		return "(dbg) "
	}
	return "> "
}

// onInterrupt handles Ctrl+C by making the next command stop.
func (h *debugHandler) onInterrupt() {
	h.srv.Invoke(func() { h.sess.RequestPause(debugger.StopPause) })
	h.println("pause requested")
}

// handleLine dispatches debug commands. It returns false for lines that
// should run as server commands.
func (h *debugHandler) handleLine(line string) (bool, error) {
	// Empty input repeats the last stepping command.
	if line == "" {
		h.mu.Lock()
		line = h.lastCmd
		h.mu.Unlock()
		if line == "" {
			return true, nil
		}
	}
	parts := strings.Fields(line)
	cmd, args := parts[0], parts[1:]

	switch cmd {
	case "step":
		return h.doStep(line, debugger.StepIn, args)
	case "step_over":
		return h.doStep(line, debugger.StepOver, args)
	case "step_out":
		return h.doStep(line, debugger.StepOut, args)
	case "continue":
		return true, h.doContinue()
	case "get":
		return true, h.doGet(strings.TrimSpace(strings.TrimPrefix(line, "get")))
	case "stack":
		h.srv.Invoke(func() { showBacktrace(h.stderr, h.sess.CallStack().All()) })
		return true, nil
	case "break":
		return true, h.doBreak(args)
	case "clear":
		return true, h.doClear(args)
	case "on", "off":
		h.srv.Invoke(func() { h.sess.SetEnabled(cmd == "on") })
		h.printf("debugger %s\n", cmd)
		return true, nil
	case "run":
		return true, h.doRun(args)
	case "reload":
		return true, h.doReload()
	case "watch":
		return true, h.doWatch(args)
	case "help":
		showHelp(h.stderr, h.width)
		return true, nil
	case "quit":
		h.println("quitting debug console")
		h.quit()
		return true, repl.ErrQuit
	}
	return false, nil
}

func (h *debugHandler) quit() {
	h.quitOnce.Do(func() { close(h.doneCh) })
}

func (h *debugHandler) doStep(line string, mode debugger.StepMode, args []string) (bool, error) {
	n := 1
	if len(args) > 0 {
		var err error
		n, err = strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return true, errors.Errorf("invalid step count: %s", args[0])
		}
	}
	h.mu.Lock()
	h.lastCmd = line
	h.mu.Unlock()
	var err error
	h.srv.Invoke(func() { err = h.sess.Step(mode, n) })
	if errors.Is(err, debugger.ErrNotDebugging) {
		h.println("not paused")
		return true, nil
	}
	return true, err
}

func (h *debugHandler) doContinue() error {
	var paused bool
	h.srv.Invoke(func() {
		paused = h.sess.Debugging() || h.sess.Suspended() > 0
		if paused {
			h.sess.Continue()
		}
	})
	if !paused {
		h.println("not paused")
	}
	return nil
}

// doGet prints the variables of the current scope, or the value of expr
// evaluated as the current scope's executor.
func (h *debugHandler) doGet(expr string) error {
	var (
		sc  *debugger.Scope
		v   mcfunction.Value
		err error
	)
	h.srv.Invoke(func() {
		sc = h.sess.CallStack().Current()
		if expr == "" {
			return
		}
		src := mcfunction.ServerSource()
		if sc != nil {
			src = sc.Source
		}
		v, err = h.srv.Eval(expr, src)
	})
	if expr == "" {
		if sc == nil {
			h.println("not paused")
			return nil
		}
		showVariables(h.stderr, sc.Variables, h.width)
		return nil
	}
	if err != nil {
		return err
	}
	if v.Kind() == mcfunction.KindCompound {
		root := debugger.NewTreeBuilder(1).Value(expr, v)
		showVariables(h.stderr, root.Children, h.width)
		return nil
	}
	h.println(fold(mcfunction.Text(v), h.width, 0))
	return nil
}

// doBreak sets a breakpoint. The location is a source path or a function
// id; lines are 1-indexed. Without arguments it lists the breakpoints.
func (h *debugHandler) doBreak(args []string) error {
	if len(args) == 0 {
		showBreakpoints(h.stderr, h.sess.Breakpoints())
		return nil
	}
	if len(args) != 2 {
		return errors.New("usage: break <path|function> <line>")
	}
	line, err := strconv.Atoi(args[1])
	if err != nil || line < 1 {
		return errors.Errorf("invalid line number: %s", args[1])
	}
	path := breakpointPath(args[0])
	id, ok := h.sess.Breakpoints().Register(path, line-1)
	if !ok {
		return errors.Errorf("failed: %s is not a function source", args[0])
	}
	h.printf("breakpoint %d set at %s:%d\n", id, path, line)
	return nil
}

func breakpointPath(loc string) string {
	if strings.HasSuffix(loc, mcfunction.FunctionExt) {
		return loc
	}
	id, err := mcfunction.ParseResourceID(loc)
	if err != nil {
		return loc
	}
	return mcfunction.FunctionPath(id)
}

func (h *debugHandler) doClear(args []string) error {
	if len(args) == 0 {
		h.sess.Breakpoints().ClearAll()
		h.println("all breakpoints cleared")
		return nil
	}
	path := breakpointPath(args[0])
	h.sess.Breakpoints().Clear(path)
	h.printf("breakpoints cleared for %s\n", path)
	return nil
}

// doRun calls a function as the server, with an optional SNBT compound of
// macro arguments.
func (h *debugHandler) doRun(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: run <function> [arguments]")
	}
	id, err := mcfunction.ParseResourceID(args[0])
	if err != nil {
		return err
	}
	var margs *mcfunction.Compound
	if len(args) > 1 {
		v, err := mcfunction.ParseSNBT(strings.Join(args[1:], " "))
		if err != nil {
			return errors.Wrap(err, "macro arguments")
		}
		c, ok := v.(*mcfunction.Compound)
		if !ok {
			return errors.New("macro arguments must be a compound")
		}
		margs = c
	}
	run, err := h.srv.Execute(h.ctx, id, mcfunction.ServerSource(), margs)
	if err != nil {
		return err
	}
	if run.Status() == mcfunction.RunCompleted {
		h.printf("%v completed\n", id)
	}
	return nil
}

// doReload reloads the datapacks. The session drops its breakpoints and
// suspended runs, then the load tag runs.
func (h *debugHandler) doReload() error {
	if err := h.srv.Reload(h.ctx); err != nil {
		return err
	}
	h.printf("reloaded %d functions\n", len(h.srv.Library.IDs()))
	return nil
}

func (h *debugHandler) doWatch(args []string) error {
	h.mu.Lock()
	w := h.watch
	h.mu.Unlock()
	sub := "status"
	if len(args) > 0 {
		sub = args[0]
	}
	if sub == "start" {
		return h.startWatch()
	}
	if w == nil {
		h.println("not watching")
		return nil
	}
	switch sub {
	case "status":
		for _, root := range w.Roots() {
			h.printf("watching %s\n", root)
		}
		h.printf("auto reload %s\n", onOff(w.Auto()))
		showChanges(h.stderr, "pending", w.Pending())
	case "stop":
		h.stopWatch()
		h.println("stopped watching")
	case "auto":
		if len(args) > 1 {
			if args[1] != "on" && args[1] != "off" {
				return errors.New("usage: watch auto [on|off]")
			}
			w.SetAuto(args[1] == "on")
		}
		h.printf("auto reload %s\n", onOff(w.Auto()))
	case "reload":
		changes, err := w.Reload()
		if err != nil {
			return err
		}
		showChanges(h.stderr, "applied", changes)
	default:
		return errors.New("usage: watch [start|stop|auto [on|off]|reload]")
	}
	return nil
}

func (h *debugHandler) startWatch() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.watch != nil {
		h.println("already watching")
		return nil
	}
	w, err := watcher.New(h.srv.Library.Roots(),
		func() error { return h.srv.Reload(h.ctx) },
		watcher.WithReloadHook(h.onWatchReload))
	if err != nil {
		return err
	}
	h.watch = w
	for _, root := range w.Roots() {
		h.printf("watching %s\n", root)
	}
	return nil
}

func (h *debugHandler) stopWatch() {
	h.mu.Lock()
	w := h.watch
	h.watch = nil
	h.mu.Unlock()
	if w == nil {
		return
	}
	if err := w.Close(); err != nil {
		log.WithError(err).Debug("Closing datapack watcher")
	}
}

func (h *debugHandler) onWatchReload(changes []watcher.Change, err error) {
	if err != nil {
		h.printf("automatic reload failed: %v\n", err)
		return
	}
	showChanges(h.stderr, "applied", changes)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func (h *debugHandler) println(s string) {
	fmt.Fprintln(h.stderr, s) //nolint:errcheck
}

func (h *debugHandler) printf(format string, v ...interface{}) {
	fmt.Fprintf(h.stderr, format, v...) //nolint:errcheck
}
