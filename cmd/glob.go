// Copyright © 2024 The ELPS authors

package cmd

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// packMeta marks the root directory of a datapack.
const packMeta = "pack.mcmeta"

// expandArgs expands arguments, resolving patterns ending with "/..." to
// every datapack found recursively under the given directory: directories
// holding a pack.mcmeta and zip archives. Non-pattern arguments pass
// through unchanged. Paths matching an exclude pattern are dropped.
func expandArgs(args []string, excludes []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		if dir, ok := strings.CutSuffix(arg, "/..."); ok {
			if dir == "" {
				dir = "."
			}
			packs, err := findDatapacks(dir)
			if err != nil {
				return nil, errors.Wrapf(err, "expanding %s", arg)
			}
			out = append(out, packs...)
		} else {
			out = append(out, arg)
		}
	}
	return filterExcludes(out, excludes), nil
}

func findDatapacks(root string) ([]string, error) {
	var packs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if filepath.Ext(path) == ".zip" {
				packs = append(packs, path)
			}
			return nil
		}
		if _, err := os.Stat(filepath.Join(path, packMeta)); err == nil {
			packs = append(packs, path)
			return filepath.SkipDir
		}
		return nil
	})
	return packs, err
}

// filterExcludes drops the paths matching one of the glob patterns.
func filterExcludes(paths []string, excludes []string) []string {
	if len(excludes) == 0 {
		return paths
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !matchesAny(p, excludes) {
			out = append(out, p)
		}
	}
	return out
}

// matchesAny reports whether the full path, or any of its components,
// matches one of the patterns.
func matchesAny(path string, patterns []string) bool {
	slashed := filepath.ToSlash(filepath.Clean(path))
	components := splitPath(path)
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, slashed); ok {
			return true
		}
		for _, c := range components {
			if ok, _ := filepath.Match(pattern, c); ok {
				return true
			}
		}
	}
	return false
}

func splitPath(path string) []string {
	return strings.Split(filepath.ToSlash(filepath.Clean(path)), "/")
}
