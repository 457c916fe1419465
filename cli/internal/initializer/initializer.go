// Package initializer plans the __init__.py files that make every generated
// directory under the package root importable.
//
// Overview:
//   - Responsibility: Compute missing package initializers from the final set of written paths
//   - Key Types: Plan
//   - Concurrency Model: Pure function
//   - Error Semantics: None
//
// Plan must see the complete set of destination paths, so the materializer
// calls it only after every other file of the run has been written.
package initializer

import (
	"path"
	"sort"
	"strings"
)

// FileName is the initializer synthesized in each package directory.
const FileName = "__init__.py"

// Plan returns the initializer paths to create for written.
//
// Parameters:
//   - written: slash-separated paths written by the run, relative to the destination
//   - packageRoot: slash-separated package root, e.g. "src/acme_api"
//   - exists: reports whether a slash-separated path already exists on disk; may be nil
//
// Returns:
//   - []string: one FileName path per directory under (and including)
//     packageRoot that is an ancestor of a written file and has no
//     initializer among written or on disk, deepest first, then lexicographic
func Plan(written []string, packageRoot string, exists func(string) bool) []string {
	packageRoot = path.Clean(packageRoot)

	have := make(map[string]struct{}, len(written))
	dirs := make(map[string]struct{})
	for _, p := range written {
		p = path.Clean(p)
		have[p] = struct{}{}
		if !within(p, packageRoot) {
			continue
		}
		for dir := path.Dir(p); within(dir, packageRoot); dir = path.Dir(dir) {
			if _, seen := dirs[dir]; seen {
				break
			}
			dirs[dir] = struct{}{}
		}
	}

	var plan []string
	for dir := range dirs {
		file := path.Join(dir, FileName)
		if _, ok := have[file]; ok {
			continue
		}
		if exists != nil && exists(file) {
			continue
		}
		plan = append(plan, file)
	}

	sort.Slice(plan, func(i, j int) bool {
		di, dj := depth(plan[i]), depth(plan[j])
		if di != dj {
			return di > dj
		}
		return plan[i] < plan[j]
	})
	return plan
}

// within reports whether p is root or lies below it.
func within(p, root string) bool {
	return p == root || strings.HasPrefix(p, root+"/")
}

func depth(p string) int {
	return strings.Count(p, "/")
}
