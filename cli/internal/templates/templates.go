// Package templates indexes template trees for materialization.
//
// Overview:
//   - Responsibility: Enumerate a template tree in deterministic order and classify nodes
//   - Key Types: Node, Kind, Loader
//   - Concurrency Model: Nodes are read-only after Load; a Loader is safe for concurrent use
//   - Error Semantics: TEMPLATE_ROOT_NOT_FOUND for a missing, non-directory or empty root
//   - Performance Notes: Content is read once per run; layer selection is in-memory
//
// Usage:
//
//	nodes, err := templates.LoadDir("./my-templates")
//	nodes, err = templates.NewLoader(templates.Default()).Load()
//	if templates.IsLayered(nodes) {
//	    nodes = templates.Select(nodes, templates.Layers("hybrid", "sqlalchemy", "postgresql"))
//	}
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"go.eggybyte.com/foundry/core/errors"
)

//go:embed all:templates
var templateFS embed.FS

// Default returns the template tree shipped with the binary.
func Default() fs.FS {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		panic(fmt.Sprintf("templates: embedded tree missing: %v", err))
	}
	return sub
}

// Kind classifies a template node.
type Kind string

// Node kinds.
const (
	KindDir    Kind = "dir"
	KindText   Kind = "text"
	KindBinary Kind = "binary"
)

// Node is one entry of a template tree.
//
// Parameters:
//   - RelPath: slash-separated path relative to the template root
//   - Kind: dir, text (valid UTF-8, no NUL) or binary
//   - Content: raw bytes for files, nil for directories
//   - Mode: permission bits of the source entry
type Node struct {
	RelPath string
	Kind    Kind
	Content []byte
	Mode    fs.FileMode
}

// IsFile reports whether n is a text or binary file.
func (n Node) IsFile() bool {
	return n.Kind != KindDir
}

// Executable reports whether the source entry carries any execute bit.
func (n Node) Executable() bool {
	return n.Mode&0o111 != 0
}

// Loader reads a template tree from an fs.FS.
type Loader struct {
	fsys fs.FS
}

// NewLoader creates a loader over fsys.
func NewLoader(fsys fs.FS) *Loader {
	return &Loader{fsys: fsys}
}

// Load enumerates every node of the tree sorted lexicographically by RelPath.
//
// Returns:
//   - []Node: all directories and files, root excluded
//   - error: TEMPLATE_ROOT_NOT_FOUND when the tree holds no file
func (l *Loader) Load() ([]Node, error) {
	var nodes []Node
	files := 0

	err := fs.WalkDir(l.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			nodes = append(nodes, Node{RelPath: p, Kind: KindDir, Mode: info.Mode().Perm()})
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		content, err := fs.ReadFile(l.fsys, p)
		if err != nil {
			return err
		}
		nodes = append(nodes, Node{RelPath: p, Kind: Classify(content), Content: content, Mode: info.Mode().Perm()})
		files++
		return nil
	})
	if err != nil {
		return nil, errors.Build(errors.CodeTemplateRootNotFound).
			WithOp("templates.Load").
			WithErr(err).
			WithMsg("cannot read template tree").
			Err()
	}
	if files == 0 {
		return nil, errors.Build(errors.CodeTemplateRootNotFound).
			WithOp("templates.Load").
			WithMsg("template tree is empty").
			Err()
	}

	sortNodes(nodes)
	return nodes, nil
}

// List returns the relative paths of every file in the tree, sorted.
func (l *Loader) List() ([]string, error) {
	nodes, err := l.Load()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, n := range nodes {
		if n.IsFile() {
			out = append(out, n.RelPath)
		}
	}
	return out, nil
}

// Load indexes fsys.
func Load(fsys fs.FS) ([]Node, error) {
	return NewLoader(fsys).Load()
}

// OpenDir returns the directory root on the OS filesystem as an fs.FS.
func OpenDir(root string) (fs.FS, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		b := errors.Build(errors.CodeTemplateRootNotFound).
			WithOp("templates.OpenDir").
			WithPath(root)
		if err != nil {
			return nil, b.WithErr(err).WithMsg("template root does not exist").Err()
		}
		return nil, b.WithMsg("template root is not a directory").Err()
	}
	return os.DirFS(root), nil
}

// LoadDir indexes the directory root on the OS filesystem.
func LoadDir(root string) ([]Node, error) {
	fsys, err := OpenDir(root)
	if err != nil {
		return nil, err
	}

	nodes, err := Load(fsys)
	if err != nil {
		var e *errors.E
		if errors.As(err, &e) && e.Path == "" {
			e.Path = root
		}
		return nil, err
	}
	return nodes, nil
}

// Classify reports KindText for valid UTF-8 content without NUL bytes and
// KindBinary otherwise.
func Classify(content []byte) Kind {
	if !utf8.Valid(content) || bytes.IndexByte(content, 0) >= 0 {
		return KindBinary
	}
	return KindText
}

// CommonLayer marks a layered template root.
const CommonLayer = "common"

// IsLayered reports whether nodes come from a layered root, one whose
// top level holds a common/ directory.
func IsLayered(nodes []Node) bool {
	for _, n := range nodes {
		if n.Kind == KindDir && n.RelPath == CommonLayer {
			return true
		}
	}
	return false
}

// Layers returns the layer directories for a selection, lowest precedence first.
func Layers(arch, orm, db string) []string {
	return []string{CommonLayer, arch, path.Join("orm", orm), path.Join("db", db)}
}

// Select merges the subtrees of layers. Paths are re-rooted at each layer
// and a later layer replaces an earlier node with the same path. Nodes
// outside every layer are dropped.
func Select(nodes []Node, layers []string) []Node {
	merged := make(map[string]Node)
	for _, layer := range layers {
		prefix := layer + "/"
		for _, n := range nodes {
			if !strings.HasPrefix(n.RelPath, prefix) {
				continue
			}
			rel := strings.TrimPrefix(n.RelPath, prefix)
			if prev, ok := merged[rel]; ok && prev.IsFile() && !n.IsFile() {
				continue
			}
			n.RelPath = rel
			merged[rel] = n
		}
	}

	out := make([]Node, 0, len(merged))
	for _, n := range merged {
		out = append(out, n)
	}
	sortNodes(out)
	return out
}

var containerFiles = map[string]struct{}{
	"Dockerfile":          {},
	"Containerfile":       {},
	".dockerignore":       {},
	"docker-compose.yml":  {},
	"docker-compose.yaml": {},
	"compose.yml":         {},
	"compose.yaml":        {},
}

// IsContainerFile reports whether rel names a container build or compose
// file, ignoring a trailing .tmpl.
func IsContainerFile(rel string) bool {
	_, ok := containerFiles[strings.TrimSuffix(path.Base(rel), ".tmpl")]
	return ok
}

// WithoutContainerFiles drops container build and compose files.
func WithoutContainerFiles(nodes []Node) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if n.IsFile() && IsContainerFile(n.RelPath) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func sortNodes(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].RelPath < nodes[j].RelPath
	})
}
