// Copyright © 2018 The ELPS authors

// Package watcher follows the files of directory datapacks and reloads a
// server when they change. Changes are collected between reloads; in auto
// mode a reload runs once the files have been quiet for a short delay.
package watcher

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultDelay is how long files must be quiet before an automatic reload.
const DefaultDelay = 200 * time.Millisecond

// ErrNothingToWatch is returned when no root is a directory.
var ErrNothingToWatch = errors.New("no datapack directory to watch")

// ChangeKind is the net effect of the events seen for a file since the
// last reload.
type ChangeKind int

const (
	Created ChangeKind = iota + 1
	Modified
	Deleted
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change is a file changed since the last reload.
type Change struct {
	Path string
	Kind ChangeKind
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDelay sets the quiet period before an automatic reload.
func WithDelay(d time.Duration) Option {
	return func(w *Watcher) { w.delay = d }
}

// WithAuto starts the watcher in auto mode.
func WithAuto(on bool) Option {
	return func(w *Watcher) { w.auto = on }
}

// WithReloadHook sets a function called after every automatic reload with
// the changes it applied.
func WithReloadHook(fn func([]Change, error)) Option {
	return func(w *Watcher) { w.onReload = fn }
}

// Watcher follows the directories of datapack roots. Archive roots are
// skipped.
type Watcher struct {
	reload   func() error
	onReload func([]Change, error)
	delay    time.Duration
	fsw      *fsnotify.Watcher
	roots    []string

	mu      sync.Mutex
	pending map[string]ChangeKind
	auto    bool
	timer   *time.Timer
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// New watches every directory root and calls reload to apply changes.
func New(roots []string, reload func() error, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "watcher")
	}
	w := &Watcher{
		reload:  reload,
		delay:   DefaultDelay,
		fsw:     fsw,
		pending: make(map[string]ChangeKind),
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			log.WithField("root", root).Warn("Datapack is not a directory and is not watched")
			continue
		}
		if err := w.addTree(root); err != nil {
			fsw.Close() //nolint:errcheck
			return nil, err
		}
		w.roots = append(w.roots, root)
	}
	if len(w.roots) == 0 {
		fsw.Close() //nolint:errcheck
		return nil, ErrNothingToWatch
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Roots returns the watched datapack directories.
func (w *Watcher) Roots() []string {
	return append([]string(nil), w.roots...)
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(p); err != nil {
			return errors.Wrapf(err, "watch %s", p)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.closeCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("Datapack watcher error")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				log.WithError(err).Warn("Cannot watch new directory")
			}
			return
		}
	}
	if !relevant(ev.Name) {
		return
	}
	var kind ChangeKind
	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		kind = Deleted
	case ev.Has(fsnotify.Create):
		kind = Created
	case ev.Has(fsnotify.Write):
		kind = Modified
	default:
		return
	}
	log.WithFields(log.Fields{"path": ev.Name, "change": kind.String()}).Debug("Datapack file changed")
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record(ev.Name, kind)
	if w.auto && !w.closed {
		w.schedule()
	}
}

func relevant(p string) bool {
	switch filepath.Ext(p) {
	case mcfunction.FunctionExt, ".json":
		return true
	}
	return false
}

// record folds kind into the pending change of p. A file created and then
// deleted before a reload leaves no change.
func (w *Watcher) record(p string, kind ChangeKind) {
	old, ok := w.pending[p]
	if !ok {
		w.pending[p] = kind
		return
	}
	switch kind {
	case Created, Modified:
		if old == Deleted {
			w.pending[p] = Modified
		}
	case Deleted:
		if old == Created {
			delete(w.pending, p)
			return
		}
		w.pending[p] = Deleted
	}
}

func (w *Watcher) schedule() {
	if w.timer == nil {
		w.timer = time.AfterFunc(w.delay, w.autoReload)
		return
	}
	w.timer.Reset(w.delay)
}

func (w *Watcher) autoReload() {
	w.mu.Lock()
	quiet := w.closed || !w.auto || len(w.pending) == 0
	w.mu.Unlock()
	if quiet {
		return
	}
	changes, err := w.Reload()
	if err != nil {
		log.WithError(err).Warn("Automatic reload failed")
	}
	if w.onReload != nil {
		w.onReload(changes, err)
	}
}

// SetAuto turns automatic reloads on or off. Turning them on reloads
// pending changes after the quiet period.
func (w *Watcher) SetAuto(on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.auto = on
	if on && len(w.pending) > 0 && !w.closed {
		w.schedule()
	}
}

// Auto reports whether automatic reloads are on.
func (w *Watcher) Auto() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.auto
}

// Pending returns the changes since the last reload, sorted by path.
func (w *Watcher) Pending() []Change {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot(false)
}

func (w *Watcher) snapshot(clear bool) []Change {
	changes := make([]Change, 0, len(w.pending))
	for p, kind := range w.pending {
		changes = append(changes, Change{Path: p, Kind: kind})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	if clear {
		w.pending = make(map[string]ChangeKind)
	}
	return changes
}

// Reload applies the pending changes and returns them.
func (w *Watcher) Reload() ([]Change, error) {
	w.mu.Lock()
	changes := w.snapshot(true)
	w.mu.Unlock()
	return changes, w.reload()
}

// Close stops watching. Pending changes are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.closeCh)
	w.mu.Unlock()
	w.wg.Wait()
	return w.fsw.Close()
}
