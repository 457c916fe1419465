package generators

import (
	"io/fs"
	"time"

	"go.eggybyte.com/foundry/cli/internal/extension"
	"go.eggybyte.com/foundry/cli/internal/pathmap"
	"go.eggybyte.com/foundry/cli/internal/projectfs"
	"go.eggybyte.com/foundry/cli/internal/rewrite"
	"go.eggybyte.com/foundry/cli/internal/templates"
	"go.eggybyte.com/foundry/core/log"
)

// Options configures a Materializer.
//
// Parameters:
//   - Logger: stage progress at debug, summary at info (default: no-op)
//   - Workers: render concurrency (default: runtime.NumCPU())
//   - Force: write into a non-empty destination, overwriting colliding files
//   - DryRun: compute the full report without touching disk
//   - Now: clock for ${year} and ${date}, read once per run (default: time.Now)
//   - Rules: post-substitution rewrite rules (default: rewrite.DefaultRules())
//   - Classifier: extension inference for extensionless files (default: Python)
//   - WriteHook: called before every file write; an error fails the write
//
// Concurrency:
//
//	Options are copied by NewMaterializer and never mutated.
type Options struct {
	Logger     log.Logger
	Workers    int
	Force      bool
	DryRun     bool
	Now        func() time.Time
	Rules      []rewrite.Rule
	Classifier extension.Classifier
	WriteHook  projectfs.WriteHook
}

// File is one generated output file.
type File struct {
	Path    string          `json:"path"`              // slash-separated, relative to the destination
	Source  string          `json:"source,omitempty"`  // template path; empty for initializers
	Kind    templates.Kind  `json:"kind"`              // text or binary
	Mode    fs.FileMode     `json:"mode"`              // permission bits written
	Rooting pathmap.Rooting `json:"rooting,omitempty"` // empty for initializers
	Context string          `json:"context,omitempty"` // context path for fan-out files
	Content []byte          `json:"-"`
}

// Report summarizes a run.
type Report struct {
	Destination  string         `json:"destination"`
	ModuleName   string         `json:"module_name"`
	PackageRoot  string         `json:"package_root"`
	DryRun       bool           `json:"dry_run"`
	Created      []string       `json:"created"`
	Directories  []string       `json:"directories,omitempty"`
	Initializers []string       `json:"initializers"`
	Skeleton     int            `json:"skeleton_files"`
	PerContext   map[string]int `json:"per_context"`
	Dependencies []string       `json:"dependencies"`
	Duration     time.Duration  `json:"duration"`

	// Files holds every output file, initializers last, in write order.
	Files []File `json:"-"`
}

// File returns the generated file at path.
func (r *Report) File(path string) (File, bool) {
	for _, f := range r.Files {
		if f.Path == path {
			return f, true
		}
	}
	return File{}, false
}
