// Package projectfs writes a generated project to disk with an undo journal.
//
// Overview:
//   - Responsibility: Create directories and files under a destination root, record every
//     mutation, and undo them all on Rollback
//   - Key Types: ProjectFS, State
//   - Concurrency Model: Methods are serialized by an internal mutex; writes are expected
//     to be issued sequentially by one run
//   - Error Semantics: IO_WRITE_FAILURE carrying the destination-relative path
//   - Performance Notes: Overwritten files are backed up in memory until Commit
//
// Usage:
//
//	pfs := projectfs.New(dest, projectfs.WithLogger(logger))
//	if err := pfs.WriteFile("src/acme/main.py", data, 0o644); err != nil {
//		_ = pfs.Rollback()
//		return err
//	}
//	pfs.Commit()
package projectfs

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.eggybyte.com/foundry/core/errors"
	"go.eggybyte.com/foundry/core/log"
)

// State describes what occupies a path before a run.
type State int

// State values.
const (
	StateMissing State = iota
	StateEmptyDir
	StateNonEmptyDir
	StateNotDir
)

func (s State) String() string {
	switch s {
	case StateMissing:
		return "missing"
	case StateEmptyDir:
		return "empty"
	case StateNonEmptyDir:
		return "non-empty"
	}
	return "not-a-directory"
}

// Inspect reports the state of dir.
func Inspect(dir string) (State, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return StateMissing, nil
	}
	if err != nil {
		return StateMissing, err
	}
	if !info.IsDir() {
		return StateNotDir, nil
	}

	f, err := os.Open(dir)
	if err != nil {
		return StateMissing, err
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); err != nil {
		if errors.Is(err, io.EOF) {
			return StateEmptyDir, nil
		}
		return StateMissing, err
	}
	return StateNonEmptyDir, nil
}

type opKind int

const (
	opMkdir opKind = iota
	opCreate
	opOverwrite
)

// entry is one journaled mutation. abs is the absolute target path.
type entry struct {
	kind opKind
	abs  string
	rel  string
	prev []byte
	mode fs.FileMode
}

// WriteHook runs before every file write and can veto it.
type WriteHook func(rel string) error

// Option configures a ProjectFS.
type Option func(*ProjectFS)

// WithLogger sets the logger receiving per-file debug records.
func WithLogger(logger log.Logger) Option {
	return func(p *ProjectFS) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithWriteHook installs hook before each file write. A hook error fails the
// write exactly as an I/O error would.
func WithWriteHook(hook WriteHook) Option {
	return func(p *ProjectFS) { p.hook = hook }
}

// ProjectFS performs journaled writes below a root directory.
type ProjectFS struct {
	rootDir string
	logger  log.Logger
	hook    WriteHook

	mu      sync.Mutex
	journal []entry
}

// New creates a ProjectFS rooted at rootDir. The root need not exist.
func New(rootDir string, opts ...Option) *ProjectFS {
	p := &ProjectFS{
		rootDir: filepath.Clean(rootDir),
		logger:  log.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Root returns the root directory.
func (p *ProjectFS) Root() string {
	return p.rootDir
}

// Abs returns the absolute location of the slash-separated path rel.
func (p *ProjectFS) Abs(rel string) string {
	return filepath.Join(p.rootDir, filepath.FromSlash(rel))
}

// Exists reports whether rel exists under the root.
func (p *ProjectFS) Exists(rel string) bool {
	_, err := os.Lstat(p.Abs(rel))
	return err == nil
}

// EnsureRoot creates the root directory and any missing ancestors.
func (p *ProjectFS) EnsureRoot() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.mkdirAll(p.rootDir); err != nil {
		return ioFailure("projectfs.EnsureRoot", ".", err)
	}
	return nil
}

// EnsureDir creates the directory rel and any missing parents.
func (p *ProjectFS) EnsureDir(rel string) error {
	const op = "projectfs.EnsureDir"
	if !filepath.IsLocal(filepath.FromSlash(rel)) {
		return errors.Build(errors.CodeIOWriteFailure).
			WithOp(op).
			WithPath(rel).
			WithMsg("path escapes the destination root").
			Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.mkdirAll(p.Abs(rel)); err != nil {
		return ioFailure(op, rel, err)
	}
	return nil
}

// WriteFile writes data to rel with mode, creating parent directories.
// An existing file is backed up first so Rollback can restore it.
//
// Parameters:
//   - rel: slash-separated path relative to the root; must stay inside it
//   - data: file content
//   - mode: permission bits applied even when the file already existed
//
// Returns:
//   - error: IO_WRITE_FAILURE naming rel
//
// Concurrency:
//   - Serialized with every other mutation of p
func (p *ProjectFS) WriteFile(rel string, data []byte, mode fs.FileMode) error {
	const op = "projectfs.WriteFile"
	if !filepath.IsLocal(filepath.FromSlash(rel)) {
		return errors.Build(errors.CodeIOWriteFailure).
			WithOp(op).
			WithPath(rel).
			WithMsg("path escapes the destination root").
			Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.hook != nil {
		if err := p.hook(rel); err != nil {
			return ioFailure(op, rel, err)
		}
	}

	abs := p.Abs(rel)
	if err := p.mkdirAll(filepath.Dir(abs)); err != nil {
		return ioFailure(op, rel, err)
	}

	e := entry{kind: opCreate, abs: abs, rel: rel}
	if info, err := os.Lstat(abs); err == nil {
		if !info.Mode().IsRegular() {
			return errors.Build(errors.CodeIOWriteFailure).
				WithOp(op).
				WithPath(rel).
				WithMsgf("refusing to replace %s", info.Mode().Type()).
				Err()
		}
		prev, err := os.ReadFile(abs)
		if err != nil {
			return ioFailure(op, rel, err)
		}
		e = entry{kind: opOverwrite, abs: abs, rel: rel, prev: prev, mode: info.Mode().Perm()}
	}

	if err := os.WriteFile(abs, data, mode); err != nil {
		// A partially written new file still has to be removed.
		p.journal = append(p.journal, e)
		return ioFailure(op, rel, err)
	}
	p.journal = append(p.journal, e)
	if err := os.Chmod(abs, mode); err != nil {
		return ioFailure(op, rel, err)
	}

	p.logger.Debug("wrote file", log.Str("path", rel), log.Int("bytes", len(data)))
	return nil
}

// mkdirAll creates dir and its missing ancestors, journaling each one.
func (p *ProjectFS) mkdirAll(dir string) error {
	var missing []string
	for d := dir; ; d = filepath.Dir(d) {
		info, err := os.Stat(d)
		if err == nil {
			if !info.IsDir() {
				return &fs.PathError{Op: "mkdir", Path: d, Err: fs.ErrExist}
			}
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		missing = append(missing, d)
		if parent := filepath.Dir(d); parent == d {
			break
		}
	}

	for i := len(missing) - 1; i >= 0; i-- {
		if err := os.Mkdir(missing[i], 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
			return err
		}
		p.journal = append(p.journal, entry{kind: opMkdir, abs: missing[i]})
		p.logger.Debug("created directory", log.Str("path", missing[i]))
	}
	return nil
}

// Written returns the destination-relative paths written so far, in write order.
func (p *ProjectFS) Written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []string
	for _, e := range p.journal {
		if e.kind != opMkdir {
			out = append(out, e.rel)
		}
	}
	return out
}

// Rollback undoes every journaled mutation in reverse order: created files
// are removed, overwritten files restored, and created directories removed.
// It keeps going after a failure and returns all failures joined.
func (p *ProjectFS) Rollback() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for i := len(p.journal) - 1; i >= 0; i-- {
		e := p.journal[i]
		var err error
		switch e.kind {
		case opCreate:
			err = os.Remove(e.abs)
		case opOverwrite:
			if err = os.WriteFile(e.abs, e.prev, e.mode); err == nil {
				err = os.Chmod(e.abs, e.mode)
			}
		case opMkdir:
			err = os.Remove(e.abs)
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	p.logger.Debug("rolled back", log.Int("entries", len(p.journal)), log.Int("failures", len(errs)))
	p.journal = nil
	return errors.Join(errs...)
}

// Commit forgets the journal, making the run's writes permanent.
func (p *ProjectFS) Commit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.journal = nil
}

// ReadFile reads rel under the root.
func (p *ProjectFS) ReadFile(rel string) ([]byte, error) {
	return os.ReadFile(p.Abs(rel))
}

// Files returns every regular file under the root as sorted slash-separated
// relative paths.
func (p *ProjectFS) Files() ([]string, error) {
	var files []string
	err := filepath.WalkDir(p.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(p.rootDir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func ioFailure(op, rel string, err error) error {
	return errors.Build(errors.CodeIOWriteFailure).
		WithOp(op).
		WithPath(rel).
		WithErr(err).
		Err()
}
