// Copyright © 2018 The ELPS authors

package mcfunction

import (
	"archive/zip"
	"bytes"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// ErrUnknownFunction is returned when a function id is not loaded.
var ErrUnknownFunction = errors.New("unknown function")

// Tags named by the game for functions run on load and on every tick.
var (
	LoadTag = ResourceID{Namespace: DefaultNamespace, Path: "load"}
	TickTag = ResourceID{Namespace: DefaultNamespace, Path: "tick"}
)

// Library holds the functions and function tags of one or more datapacks.
type Library struct {
	mu        sync.RWMutex
	roots     []string
	functions map[ResourceID]*Function
	tags      map[ResourceID][]tagRef
}

// tagRef is one entry of a function tag: a function or a nested tag.
type tagRef struct {
	id  ResourceID
	tag bool
}

// NewLibrary returns an empty library.
func NewLibrary() *Library {
	return &Library{
		functions: make(map[ResourceID]*Function),
		tags:      make(map[ResourceID][]tagRef),
	}
}

// Function returns the function with the given id.
func (l *Library) Function(id ResourceID) (*Function, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fn, ok := l.functions[id]
	return fn, ok
}

// Add registers fn, replacing any function with the same id.
func (l *Library) Add(fn *Function) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.functions[fn.ID] = fn
}

// AddSource parses text as the body of id and registers it.
func (l *Library) AddSource(id ResourceID, text string) (*Function, error) {
	fn, err := ParseFunction(id, strings.NewReader(text))
	if err != nil {
		return nil, err
	}
	fn.Location = Location{Path: FunctionPath(id)}
	l.Add(fn)
	return fn, nil
}

// IDs returns every loaded function id in sorted order.
func (l *Library) IDs() []ResourceID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]ResourceID, 0, len(l.functions))
	for id := range l.functions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// AddTag appends functions to the function tag id.
func (l *Library) AddTag(id ResourceID, functions ...ResourceID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, fn := range functions {
		l.tags[id] = append(l.tags[id], tagRef{id: fn})
	}
}

func (l *Library) tag(id ResourceID) []tagRef {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]tagRef(nil), l.tags[id]...)
}

// Load reads every function and function tag of the datapack at root,
// which is either a directory or a zip archive. All malformed files are
// reported together.
func (l *Library) Load(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return errors.Wrap(err, "datapack")
	}
	var merr *multierror.Error
	if info.IsDir() {
		merr = l.loadFS(os.DirFS(root), func(p string) Location {
			return Location{Path: filepath.Join(root, filepath.FromSlash(p))}
		})
	} else {
		zr, err := zip.OpenReader(root)
		if err != nil {
			return errors.Wrapf(err, "datapack %s", root)
		}
		defer zr.Close() //nolint:errcheck
		merr = l.loadFS(zr, func(p string) Location {
			return Location{Archive: root, Path: p}
		})
	}
	l.mu.Lock()
	l.roots = append(l.roots, root)
	l.mu.Unlock()
	return merr.ErrorOrNil()
}

// Roots returns the datapack roots passed to Load, in load order.
func (l *Library) Roots() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.roots...)
}

// Reload discards everything and loads every previously loaded root again.
func (l *Library) Reload() error {
	l.mu.Lock()
	roots := l.roots
	l.roots = nil
	l.functions = make(map[ResourceID]*Function)
	l.tags = make(map[ResourceID][]tagRef)
	l.mu.Unlock()
	var merr *multierror.Error
	for _, root := range roots {
		if err := l.Load(root); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

func (l *Library) loadFS(fsys fs.FS, locate func(string) Location) *multierror.Error {
	var merr *multierror.Error
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			merr = multierror.Append(merr, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		switch {
		case strings.HasSuffix(p, FunctionExt):
			id, ok := FunctionIDFromPath(p)
			if !ok {
				log.WithField("path", p).Debug("Skipping function outside data/<namespace>/function")
				return nil
			}
			fn, err := readFunction(fsys, p, id)
			if err != nil {
				merr = multierror.Append(merr, err)
				return nil
			}
			fn.Location = locate(p)
			l.Add(fn)
		case strings.HasSuffix(p, ".json"):
			id, ok := tagIDFromPath(p)
			if !ok {
				return nil
			}
			if err := l.readTag(fsys, p, id); err != nil {
				merr = multierror.Append(merr, err)
			}
		}
		return nil
	})
	if err != nil {
		merr = multierror.Append(merr, err)
	}
	return merr
}

func readFunction(fsys fs.FS, p string, id ResourceID) (*Function, error) {
	b, err := fs.ReadFile(fsys, p)
	if err != nil {
		return nil, errors.Wrap(err, p)
	}
	fn, err := ParseFunction(id, bytes.NewReader(b))
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.Path = p
		}
		return nil, errors.Wrap(err, p)
	}
	return fn, nil
}

// tagIDFromPath maps data/<ns>/tags/function(s)/<rel>.json to <ns>:<rel>.
func tagIDFromPath(p string) (ResourceID, bool) {
	parts := strings.Split(strings.TrimSuffix(p, ".json"), "/")
	for i := 0; i+4 < len(parts); i++ {
		if parts[i] == "data" && parts[i+2] == "tags" && isFunctionDir(parts[i+3]) {
			return ResourceID{Namespace: parts[i+1], Path: path.Join(parts[i+4:]...)}, true
		}
	}
	return ResourceID{}, false
}

func (l *Library) readTag(fsys fs.FS, p string, id ResourceID) error {
	b, err := fs.ReadFile(fsys, p)
	if err != nil {
		return errors.Wrap(err, p)
	}
	if !gjson.ValidBytes(b) {
		return errors.Errorf("%s: invalid JSON", p)
	}
	doc := gjson.ParseBytes(b)
	var refs []tagRef
	var merr *multierror.Error
	for _, v := range doc.Get("values").Array() {
		ref := v.String()
		if v.IsObject() {
			ref = v.Get("id").String()
		}
		fid, err := ParseResourceID(strings.TrimPrefix(ref, "#"))
		if err != nil {
			merr = multierror.Append(merr, errors.Wrap(err, p))
			continue
		}
		refs = append(refs, tagRef{id: fid, tag: strings.HasPrefix(ref, "#")})
	}
	l.mu.Lock()
	if doc.Get("replace").Bool() {
		l.tags[id] = refs
	} else {
		l.tags[id] = append(l.tags[id], refs...)
	}
	l.mu.Unlock()
	return merr.ErrorOrNil()
}

// ExpandTag resolves a function tag to function ids, following nested tag
// references.
func (l *Library) ExpandTag(id ResourceID) []ResourceID {
	seen := map[ResourceID]bool{}
	var out []ResourceID
	var walk func(ResourceID)
	walk = func(tag ResourceID) {
		if seen[tag] {
			return
		}
		seen[tag] = true
		for _, ref := range l.tag(tag) {
			if ref.tag {
				walk(ref.id)
				continue
			}
			out = append(out, ref.id)
		}
	}
	walk(id)
	return out
}

// SourceText returns the raw source of fn read from its location. Archive
// members are read from the zip.
func SourceText(fn *Function) (string, error) {
	if !fn.Location.InArchive() {
		if fn.Location.Path == "" {
			return fn.Source(), nil
		}
		b, err := os.ReadFile(fn.Location.Path)
		if err != nil {
			return fn.Source(), nil
		}
		return string(b), nil
	}
	zr, err := zip.OpenReader(fn.Location.Archive)
	if err != nil {
		return "", errors.Wrap(err, fn.Location.Archive)
	}
	defer zr.Close() //nolint:errcheck
	f, err := zr.Open(fn.Location.Path)
	if err != nil {
		return "", errors.Wrap(err, fn.Location.String())
	}
	defer f.Close() //nolint:errcheck
	b, err := io.ReadAll(f)
	if err != nil {
		return "", errors.Wrap(err, fn.Location.String())
	}
	return string(b), nil
}
