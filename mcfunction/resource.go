// Copyright © 2018 The ELPS authors

package mcfunction

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// DefaultNamespace is assumed for resource ids written without one.
const DefaultNamespace = "minecraft"

// FunctionExt is the file extension of function sources.
const FunctionExt = ".mcfunction"

// ResourceID is a namespaced identifier such as ns:path/to/thing.
type ResourceID struct {
	Namespace string
	Path      string
}

var (
	namespacePattern = regexp.MustCompile(`^[a-z0-9_.\-]+$`)
	resourcePattern  = regexp.MustCompile(`^[a-z0-9_.\-/]+$`)
)

// ParseResourceID parses ns:path. A missing namespace defaults to
// minecraft.
func ParseResourceID(s string) (ResourceID, error) {
	ns, p, found := strings.Cut(s, ":")
	if !found {
		ns, p = DefaultNamespace, s
	}
	if !namespacePattern.MatchString(ns) || !resourcePattern.MatchString(p) {
		return ResourceID{}, errors.Errorf("invalid resource id: %q", s)
	}
	return ResourceID{Namespace: ns, Path: p}, nil
}

// MustParseResourceID is like ParseResourceID but panics on error.
func MustParseResourceID(s string) ResourceID {
	id, err := ParseResourceID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ResourceID) String() string {
	return id.Namespace + ":" + id.Path
}

// functionDirs are the directory names holding functions under
// data/<namespace>. The singular form is current, the plural is legacy.
var functionDirs = []string{"function", "functions"}

// FunctionIDFromPath maps a datapack source path of the form
// .../data/<namespace>/function/<rel>.mcfunction to <namespace>:<rel>. Both
// slash styles are accepted. The second result is false when the path does
// not have that shape.
func FunctionIDFromPath(p string) (ResourceID, bool) {
	p = strings.ReplaceAll(filepath.ToSlash(p), `\`, "/")
	if !strings.HasSuffix(p, FunctionExt) {
		return ResourceID{}, false
	}
	parts := strings.Split(strings.TrimSuffix(p, FunctionExt), "/")
	for i := len(parts) - 3; i >= 0; i-- {
		if parts[i] != "data" || !isFunctionDir(parts[i+2]) {
			continue
		}
		rel := parts[i+3:]
		if len(rel) == 0 {
			return ResourceID{}, false
		}
		id := ResourceID{Namespace: parts[i+1], Path: path.Join(rel...)}
		if !namespacePattern.MatchString(id.Namespace) || !resourcePattern.MatchString(id.Path) {
			return ResourceID{}, false
		}
		return id, true
	}
	return ResourceID{}, false
}

func isFunctionDir(s string) bool {
	for _, d := range functionDirs {
		if s == d {
			return true
		}
	}
	return false
}

// FunctionPath returns the datapack-relative source path of a function id.
func FunctionPath(id ResourceID) string {
	return path.Join("data", id.Namespace, functionDirs[0], id.Path+FunctionExt)
}
