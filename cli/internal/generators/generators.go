// Package generators materializes a template tree into a new project.
//
// Overview:
//   - Responsibility: Run the pipeline validate, load, select layers, map paths, rewrite,
//     infer extensions, check collisions, apply the destination policy, write, add
//     package initializers, commit
//   - Key Types: Materializer, Options, Report, File
//   - Concurrency Model: Rendering runs on a bounded errgroup; writes are sequential.
//     Output order never depends on worker count
//   - Error Semantics: Validation and rendering failures happen before any disk access.
//     A failed or cancelled write phase is rolled back completely
//   - Performance Notes: The whole project is rendered in memory before the first write
//
// Usage:
//
//	m := generators.NewMaterializer(generators.Options{Logger: logger})
//	report, err := m.Materialize(ctx, templates.Default(), spec, "./orium-customer")
package generators

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"go.eggybyte.com/foundry/cli/internal/extension"
	"go.eggybyte.com/foundry/cli/internal/initializer"
	"go.eggybyte.com/foundry/cli/internal/pathmap"
	"go.eggybyte.com/foundry/cli/internal/placeholder"
	"go.eggybyte.com/foundry/cli/internal/projectfs"
	"go.eggybyte.com/foundry/cli/internal/projectspec"
	"go.eggybyte.com/foundry/cli/internal/rewrite"
	"go.eggybyte.com/foundry/cli/internal/templates"
	"go.eggybyte.com/foundry/core/errors"
	"go.eggybyte.com/foundry/core/log"
)

// Materializer turns a template tree and a ProjectSpec into files on disk.
type Materializer struct {
	opts     Options
	logger   log.Logger
	rewriter *rewrite.Rewriter
}

// NewMaterializer creates a Materializer, filling unset options with defaults.
func NewMaterializer(opts Options) *Materializer {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rules == nil {
		opts.Rules = rewrite.DefaultRules()
	}
	if opts.Classifier == nil {
		opts.Classifier = extension.PythonClassifier{MaxLines: extension.DefaultMaxLines}
	}
	return &Materializer{
		opts:     opts,
		logger:   opts.Logger,
		rewriter: rewrite.New(opts.Rules...),
	}
}

// Materialize generates the project described by spec from the template
// tree fsys into destination.
//
// Parameters:
//   - ctx: cancellation; honored between renders and between writes
//   - fsys: template tree; nil selects the embedded default templates
//   - spec: generation parameters, re-validated here
//   - destination: project root directory on the OS filesystem
//
// Returns:
//   - *Report: what was (or, in dry-run mode, would be) written
//   - error: a validation code, TEMPLATE_ROOT_NOT_FOUND, UNRESOLVED_PLACEHOLDER,
//     DUPLICATE_DESTINATION, DESTINATION_ALREADY_EXISTS, IO_WRITE_FAILURE or ABORTED
//
// Concurrency:
//   - Safe to call concurrently for different destinations
func (m *Materializer) Materialize(ctx context.Context, fsys fs.FS, spec projectspec.ProjectSpec, destination string) (*Report, error) {
	start := time.Now()
	logger := m.logger.With(log.Str("destination", destination), log.Str("module", spec.ModuleName))

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if fsys == nil {
		fsys = templates.Default()
	}

	nodes, err := m.index(fsys, spec)
	if err != nil {
		return nil, err
	}
	logger.Debug("indexed templates", log.Int("nodes", len(nodes)))

	// One clock reading per run so every file shares ${year} and ${date}.
	resolver := placeholder.NewResolver(spec, m.opts.Now())
	mapper := pathmap.New(spec, resolver)

	files, err := m.render(ctx, nodes, spec, resolver, mapper)
	if err != nil {
		return nil, err
	}
	if err := checkCollisions(files); err != nil {
		return nil, err
	}
	dirs, err := emptyDirectories(nodes, files, mapper)
	if err != nil {
		return nil, err
	}
	logger.Debug("rendered", log.Int("files", len(files)), log.Int("empty_dirs", len(dirs)))

	if err := m.checkDestination(destination); err != nil {
		return nil, err
	}

	pfs := projectfs.New(destination, projectfs.WithLogger(logger), projectfs.WithWriteHook(m.opts.WriteHook))
	written := make([]string, len(files))
	for i, f := range files {
		written[i] = f.Path
	}
	inits := initializer.Plan(written, spec.PackageRoot(), pfs.Exists)
	for _, p := range inits {
		files = append(files, File{Path: p, Kind: templates.KindText, Mode: 0o644, Content: []byte{}})
	}

	report := newReport(destination, spec, files, dirs, inits, m.opts.DryRun)
	if m.opts.DryRun {
		report.Duration = time.Since(start)
		logger.Info("dry run complete", log.Int("files", len(report.Created)), log.Dur("duration", report.Duration))
		return report, nil
	}

	if err := m.write(ctx, pfs, files, dirs); err != nil {
		logger.Error(err, "materialization failed, rolled back")
		return nil, err
	}

	report.Duration = time.Since(start)
	logger.Info("materialized",
		log.Int("files", len(report.Created)),
		log.Int("initializers", len(inits)),
		log.Dur("duration", report.Duration))
	return report, nil
}

// index loads fsys and narrows it to what spec selects.
func (m *Materializer) index(fsys fs.FS, spec projectspec.ProjectSpec) ([]templates.Node, error) {
	nodes, err := templates.Load(fsys)
	if err != nil {
		return nil, err
	}
	if templates.IsLayered(nodes) {
		layers := templates.Layers(string(spec.Architecture), string(spec.ORM), string(spec.DB))
		nodes = templates.Select(nodes, layers)
		m.logger.Debug("selected layers", log.Str("layers", strings.Join(layers, ",")))
	}
	if !spec.Docker {
		nodes = templates.WithoutContainerFiles(nodes)
	}
	return nodes, nil
}

// render produces the files of every file node. Nodes are rendered
// concurrently but results keep index order, and the reported failure is the
// one of the lowest failing node.
func (m *Materializer) render(ctx context.Context, nodes []templates.Node, spec projectspec.ProjectSpec, resolver *placeholder.Resolver, mapper *pathmap.Mapper) ([]File, error) {
	contexts := make(map[string]placeholder.Context, len(spec.Contexts)+1)
	contexts[""] = resolver.Resolve(nil)
	for i := range spec.Contexts {
		contexts[spec.Contexts[i].Path] = resolver.Resolve(&spec.Contexts[i])
	}

	results := make([][]File, len(nodes))
	errs := make([]error, len(nodes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Workers)
	for i, node := range nodes {
		if !node.IsFile() {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return aborted("generators.render", err)
			}
			results[i], errs[i] = m.renderNode(node, mapper, contexts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var files []File
	for i := range nodes {
		if errs[i] != nil {
			return nil, errs[i]
		}
		files = append(files, results[i]...)
	}
	return files, nil
}

func (m *Materializer) renderNode(node templates.Node, mapper *pathmap.Mapper, contexts map[string]placeholder.Context) ([]File, error) {
	dests, err := mapper.Map(node.RelPath)
	if err != nil {
		return nil, err
	}

	out := make([]File, 0, len(dests))
	for _, d := range dests {
		f := File{
			Path:    d.Path,
			Source:  node.RelPath,
			Kind:    node.Kind,
			Rooting: d.Rooting,
			Content: node.Content,
		}
		if d.Context != nil {
			f.Context = d.Context.Path
		}

		if node.Kind == templates.KindText {
			text, err := m.rewriter.Rewrite(node.RelPath, string(node.Content), contexts[f.Context])
			if err != nil {
				return nil, err
			}
			f.Content = []byte(text)
			f.Path = extension.Infer(f.Path, f.Content, m.opts.Classifier)
		}
		f.Mode = fileMode(node, f.Path)
		out = append(out, f)
	}
	return out, nil
}

// fileMode returns 0755 for shell scripts under scripts/ and for templates
// with an execute bit, 0644 otherwise.
func fileMode(node templates.Node, dest string) fs.FileMode {
	if node.Executable() {
		return 0o755
	}
	if strings.HasPrefix(dest, "scripts/") && path.Ext(dest) == ".sh" {
		return 0o755
	}
	return 0o644
}

// checkCollisions rejects two templates that render to the same path, and a
// file that would sit where another file needs a directory.
func checkCollisions(files []File) error {
	owner := make(map[string]string, len(files))
	for _, f := range files {
		if prev, dup := owner[f.Path]; dup {
			return duplicate(f.Path, prev, f.Source)
		}
		owner[f.Path] = f.Source
	}
	for _, f := range files {
		for dir := path.Dir(f.Path); dir != "."; dir = path.Dir(dir) {
			if prev, clash := owner[dir]; clash {
				return duplicate(dir, prev, f.Source)
			}
		}
	}
	return nil
}

func duplicate(dest, first, second string) error {
	return errors.Build(errors.CodeDuplicateDestination).
		WithOp("generators.Materialize").
		WithPath(dest).
		WithMsgf("templates %q and %q both produce this path", first, second).
		WithDetails(first, second).
		Err()
}

// emptyDirectories maps template directories that hold no file, so they are
// still created.
func emptyDirectories(nodes []templates.Node, files []File, mapper *pathmap.Mapper) ([]string, error) {
	var sources []string
	for _, f := range files {
		sources = append(sources, f.Source)
	}

	var dirs []string
	for _, n := range nodes {
		if n.IsFile() || hasDescendant(n.RelPath, sources) {
			continue
		}
		dests, err := mapper.Map(n.RelPath)
		if err != nil {
			return nil, err
		}
		for _, d := range dests {
			dirs = append(dirs, d.Path)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func hasDescendant(dir string, paths []string) bool {
	prefix := dir + "/"
	for _, p := range paths {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// checkDestination applies the refuse-unless-forced policy.
func (m *Materializer) checkDestination(destination string) error {
	state, err := projectfs.Inspect(destination)
	if err != nil {
		return errors.Build(errors.CodeIOWriteFailure).
			WithOp("generators.Materialize").
			WithPath(destination).
			WithErr(err).
			WithMsg("cannot inspect destination").
			Err()
	}

	switch {
	case state == projectfs.StateNotDir:
		return errors.Build(errors.CodeDestinationAlreadyExists).
			WithOp("generators.Materialize").
			WithPath(destination).
			WithMsg("destination exists and is not a directory").
			Err()
	case state == projectfs.StateNonEmptyDir && !m.opts.Force:
		return errors.Build(errors.CodeDestinationAlreadyExists).
			WithOp("generators.Materialize").
			WithPath(destination).
			WithMsg("destination is not empty; use force to write into it").
			Err()
	}
	return nil
}

// write commits files, then empty directories, to disk. Any failure or
// cancellation rolls back everything this run did.
func (m *Materializer) write(ctx context.Context, pfs *projectfs.ProjectFS, files []File, dirs []string) (err error) {
	defer func() {
		if err == nil {
			pfs.Commit()
			return
		}
		if rbErr := pfs.Rollback(); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
	}()

	if err := pfs.EnsureRoot(); err != nil {
		return err
	}
	for _, f := range files {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return aborted("generators.write", ctxErr)
		}
		if err := pfs.WriteFile(f.Path, f.Content, f.Mode); err != nil {
			return err
		}
	}
	for _, d := range dirs {
		if err := pfs.EnsureDir(d); err != nil {
			return err
		}
	}
	return nil
}

func aborted(op string, cause error) error {
	return errors.Build(errors.CodeAborted).
		WithOp(op).
		WithErr(cause).
		WithMsg("run cancelled").
		Err()
}

func newReport(destination string, spec projectspec.ProjectSpec, files []File, dirs, inits []string, dryRun bool) *Report {
	r := &Report{
		Destination:  destination,
		ModuleName:   spec.ModuleName,
		PackageRoot:  spec.PackageRoot(),
		DryRun:       dryRun,
		Directories:  dirs,
		Initializers: inits,
		PerContext:   make(map[string]int, len(spec.Contexts)),
		Dependencies: projectspec.Dependencies(spec),
		Files:        files,
	}
	for _, c := range spec.Contexts {
		r.PerContext[c.Path] = 0
	}
	for _, f := range files {
		r.Created = append(r.Created, f.Path)
		switch {
		case f.Context != "":
			r.PerContext[f.Context]++
		case f.Source != "":
			r.Skeleton++
		}
	}
	sort.Strings(r.Created)
	return r
}
