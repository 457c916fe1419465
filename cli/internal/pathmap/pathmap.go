// Package pathmap computes destination paths for template nodes.
//
// Overview:
//   - Responsibility: Root each template path at the project root or under src/<module_name>/,
//     expand path tokens and fan out per bounded context
//   - Key Types: Mapper, Destination, Rooting
//   - Concurrency Model: Mapper is immutable after New; Map is safe for concurrent use
//   - Error Semantics: UNRESOLVED_PLACEHOLDER for unknown path tokens
//   - Performance Notes: Pure string work, no filesystem access
//
// Usage:
//
//	m := pathmap.New(spec, resolver)
//	dests, err := m.Map("domain/${context}/entities.py.tmpl")
//	// dests[0].Path == "src/orium_customer/domain/customer/entities.py"
//
// Decision order for a template path:
//  1. A trailing ".tmpl" is stripped, then a legacy "src/<default package>/" prefix.
//  2. Allowlisted paths (root files such as README or pyproject.toml, or anything
//     under tests/ or scripts/) keep their path at the project root.
//  3. Paths under an architecture layer go under src/<module_name>/.
//  4. Everything else also goes under src/<module_name>/.
package pathmap

import (
	"path"
	"strings"

	"go.eggybyte.com/foundry/cli/internal/placeholder"
	"go.eggybyte.com/foundry/cli/internal/projectspec"
)

// TemplateSuffix is stripped from every template file name.
const TemplateSuffix = ".tmpl"

// Rooting tells where a destination was placed.
type Rooting string

// Rooting values.
const (
	RootProject Rooting = "project" // allowlisted, kept at the project root
	RootLayer   Rooting = "layer"   // recognized architecture layer under the package root
	RootPackage Rooting = "package" // unrecognized path, placed under the package root
)

// Destination is one output location of a template path.
type Destination struct {
	Path    string                      // slash-separated, relative to the destination root
	Rooting Rooting                     // which rule placed the path
	Context *projectspec.BoundedContext // non-nil for per-context fan-out
}

// rootFiles are allowlisted project-root file names, matched exactly.
var rootFiles = map[string]struct{}{
	"pyproject.toml":      {},
	".env.example":        {},
	".gitignore":          {},
	".dockerignore":       {},
	"Dockerfile":          {},
	"Containerfile":       {},
	"docker-compose.yml":  {},
	"docker-compose.yaml": {},
	"compose.yml":         {},
	"compose.yaml":        {},
}

// rootFilePrefixes are allowlisted root file name prefixes (README.md, LICENSE.txt).
var rootFilePrefixes = []string{"README", "LICENSE"}

// rootDirs are allowlisted top-level directories.
var rootDirs = map[string]struct{}{
	"tests":   {},
	"scripts": {},
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithRootEntries allowlists additional root file names or top-level directories.
func WithRootEntries(entries ...string) Option {
	return func(m *Mapper) {
		for _, e := range entries {
			e = strings.Trim(e, "/")
			if e != "" {
				m.extraRoot[e] = struct{}{}
			}
		}
	}
}

// WithLegacyPackage sets the hard-coded package whose src/<name>/ prefix is
// stripped from template paths. Defaults to projectspec.DefaultPackage.
func WithLegacyPackage(name string) Option {
	return func(m *Mapper) { m.legacyPrefix = "src/" + name + "/" }
}

// Mapper maps template-relative paths to destinations for one spec.
type Mapper struct {
	spec         projectspec.ProjectSpec
	base         placeholder.Context
	perContext   []placeholder.Context
	extraRoot    map[string]struct{}
	legacyPrefix string
}

// New creates a Mapper. resolver must be built from the same spec.
func New(spec projectspec.ProjectSpec, resolver *placeholder.Resolver, opts ...Option) *Mapper {
	m := &Mapper{
		spec:         spec,
		base:         resolver.Resolve(nil),
		extraRoot:    make(map[string]struct{}),
		legacyPrefix: "src/" + projectspec.DefaultPackage + "/",
	}
	for i := range spec.Contexts {
		m.perContext = append(m.perContext, resolver.Resolve(&spec.Contexts[i]))
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Map returns the destinations of the template path rel.
//
// Parameters:
//   - rel: slash-separated template-relative path (tokens unexpanded)
//
// Returns:
//   - []Destination: one per context when rel carries ${context} or
//     ${ContextCap} in any segment, exactly one otherwise
//   - error: UNRESOLVED_PLACEHOLDER naming rel and the token
func (m *Mapper) Map(rel string) ([]Destination, error) {
	clean := m.Clean(rel)
	rooting := m.Classify(clean)

	if !placeholder.Contains(clean, placeholder.ContextKeys...) {
		p, err := m.place(clean, rooting, m.base, rel)
		if err != nil {
			return nil, err
		}
		return []Destination{{Path: p, Rooting: rooting}}, nil
	}

	dests := make([]Destination, 0, len(m.spec.Contexts))
	for i := range m.spec.Contexts {
		p, err := m.place(clean, rooting, m.perContext[i], rel)
		if err != nil {
			return nil, err
		}
		bc := m.spec.Contexts[i]
		dests = append(dests, Destination{Path: p, Rooting: rooting, Context: &bc})
	}
	return dests, nil
}

// Clean strips the template suffix and the legacy package prefix from rel.
func (m *Mapper) Clean(rel string) string {
	rel = strings.TrimSuffix(rel, TemplateSuffix)
	return strings.TrimPrefix(rel, m.legacyPrefix)
}

// Classify decides the rooting of a cleaned template path.
func (m *Mapper) Classify(clean string) Rooting {
	top, _, nested := strings.Cut(clean, "/")

	if _, ok := m.extraRoot[top]; ok {
		return RootProject
	}
	if nested {
		if _, ok := rootDirs[top]; ok {
			return RootProject
		}
		if m.spec.Architecture.IsLayer(top) {
			return RootLayer
		}
		return RootPackage
	}
	if IsRootFile(top) {
		return RootProject
	}
	return RootPackage
}

// IsRootFile reports whether name is an allowlisted project-root file.
func IsRootFile(name string) bool {
	if _, ok := rootFiles[name]; ok {
		return true
	}
	for _, prefix := range rootFilePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// IsRootDir reports whether name is an allowlisted top-level directory.
func IsRootDir(name string) bool {
	_, ok := rootDirs[name]
	return ok
}

func (m *Mapper) place(clean string, rooting Rooting, ctx placeholder.Context, source string) (string, error) {
	expanded, err := placeholder.Expand(clean, ctx, source)
	if err != nil {
		return "", err
	}
	if rooting == RootProject {
		return path.Clean(expanded), nil
	}
	return path.Join(m.spec.PackageRoot(), expanded), nil
}
