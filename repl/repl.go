// Copyright © 2018 The ELPS authors

// Package repl runs an interactive server console. Each line is executed
// as a command from the server source, the way a line typed at a
// dedicated server console runs. Other packages extend the console with
// their own commands through WithLineHandler.
package repl

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ergochat/readline"
	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrQuit is returned by a LineHandler to end the console.
var ErrQuit = errors.New("quit")

// LineHandler gets every non-empty line before it runs as a server
// command. It returns true when it consumed the line. A non-nil error
// other than ErrQuit is rendered and the console keeps reading.
type LineHandler func(line string) (bool, error)

type config struct {
	stdin       io.ReadCloser
	stderr      io.Writer
	historyFile string
	handler     LineHandler
	completer   readline.AutoCompleter
	promptFunc  func() string
	interrupt   func()
	doneCh      <-chan struct{}
}

func newConfig(opts ...Option) *config {
	config := &config{
		stderr:      os.Stderr,
		historyFile: historyPath(),
	}
	for _, opt := range opts {
		opt(config)
	}
	return config
}

// Option configures the console.
type Option func(*config)

// WithStdin allows overriding the input to the console.
func WithStdin(stdin io.ReadCloser) Option {
	return func(c *config) {
		c.stdin = stdin
	}
}

// WithStderr allows overriding the output of the console. Server output is
// redirected to the same writer.
func WithStderr(stderr io.Writer) Option {
	return func(c *config) {
		c.stderr = stderr
	}
}

// WithHistoryFile sets the history file. An empty path disables history.
func WithHistoryFile(path string) Option {
	return func(c *config) {
		c.historyFile = path
	}
}

// WithLineHandler installs h ahead of server command execution.
func WithLineHandler(h LineHandler) Option {
	return func(c *config) {
		c.handler = h
	}
}

// WithCompleter replaces the default command completer.
func WithCompleter(ac readline.AutoCompleter) Option {
	return func(c *config) {
		c.completer = ac
	}
}

// WithPromptFunc computes the prompt before every line.
func WithPromptFunc(fn func() string) Option {
	return func(c *config) {
		c.promptFunc = fn
	}
}

// WithInterruptFunc is called on Ctrl+C.
func WithInterruptFunc(fn func()) Option {
	return func(c *config) {
		c.interrupt = fn
	}
}

// WithDoneCh ends the console once ch is closed.
func WithDoneCh(ch <-chan struct{}) Option {
	return func(c *config) {
		c.doneCh = ch
	}
}

// Run reads lines until EOF, ErrQuit or ctx is done and executes them on
// srv.
func Run(ctx context.Context, srv *mcfunction.Server, prompt string, opts ...Option) error {
	cfg := newConfig(opts...)
	srv.Invoke(func() { srv.Output = cfg.stderr })

	if cfg.completer == nil {
		cfg.completer = &commandCompleter{lib: srv.Library}
	}
	ensureHistoryFilePermissions(cfg.historyFile)
	rlCfg := &readline.Config{
		Stdout:            cfg.stderr,
		Stderr:            cfg.stderr,
		Prompt:            prompt,
		HistoryFile:       cfg.historyFile,
		HistorySearchFold: true,
		AutoComplete:      cfg.completer,
	}
	if cfg.stdin != nil {
		rlCfg.Stdin = cfg.stdin
	}
	rl, err := readline.NewEx(rlCfg)
	if err != nil {
		return errors.Wrap(err, "console")
	}
	defer rl.Close() //nolint:errcheck // best-effort cleanup

	for {
		if cfg.done(ctx) {
			return nil
		}
		if cfg.promptFunc != nil {
			rl.SetPrompt(cfg.promptFunc())
		}
		line, err := rl.ReadLine()
		if errors.Is(err, readline.ErrInterrupt) {
			if cfg.interrupt != nil {
				cfg.interrupt()
			}
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.WithError(err).Debug("Console input closed")
			}
			return nil
		}
		line = strings.TrimSpace(line)
		if cfg.handler != nil {
			handled, err := cfg.handler(line)
			if errors.Is(err, ErrQuit) {
				return nil
			}
			if err != nil {
				renderError(cfg.stderr, err)
			}
			if handled {
				continue
			}
		}
		if line == "" {
			continue
		}
		_, err = srv.ExecuteCommand(ctx, strings.TrimPrefix(line, "/"), mcfunction.ServerSource())
		if err != nil {
			renderError(cfg.stderr, err)
		}
	}
}

func (c *config) done(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-c.doneCh:
		return true
	default:
		return false
	}
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".sniffer_history")
}

// ensureHistoryFilePermissions creates the history file readable only by
// its owner, or restricts an existing one.
func ensureHistoryFilePermissions(path string) {
	if path == "" {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600) //nolint:gosec // path is the user's own history file
	if err != nil {
		log.WithError(err).Debug("Unable to create history file")
		return
	}
	f.Close() //nolint:errcheck,gosec
	if err := os.Chmod(path, 0600); err != nil {
		log.WithError(err).Debug("Unable to restrict history file")
	}
}
