// Package lint checks an already generated project tree.
//
// Overview:
//   - Responsibility: Verify rooting, packaging completeness, leftover placeholder tokens
//     and leftover default-package imports of a project on disk
//   - Key Types: Linter, LintResult, LintResults
//   - Concurrency Model: Linter is immutable; Check is safe for concurrent use
//   - Error Semantics: Findings are results, not errors; Check fails only on an
//     invalid module name or an unreadable tree
//   - Performance Notes: Reads every file once; binary files are skipped
//
// Usage:
//
//	linter := lint.NewLinter()
//	results, err := linter.Check(projectfs.New("./loja"), "acme_api")
package lint

import (
	"fmt"
	"path"
	"strings"

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

// Severity levels.
const (
	LevelError   = "error"
	LevelWarning = "warning"
	LevelInfo    = "info"
)

// Rule names.
const (
	RulePackageRoot   = "package-root"
	RuleRooting       = "rooting"
	RulePackaging     = "packaging"
	RuleLeftoverToken = "leftover-token"
	RuleDefaultImport = "default-import"
)

// ignoredDirs are tool and cache directories that never count as project content.
var ignoredDirs = map[string]struct{}{
	".git":          {},
	".venv":         {},
	"venv":          {},
	"__pycache__":   {},
	".mypy_cache":   {},
	".pytest_cache": {},
	".ruff_cache":   {},
	".idea":         {},
	".vscode":       {},
	"node_modules":  {},
}

// Linter checks generated project trees.
type Linter struct {
	logger      log.Logger
	importRules []rewrite.ImportRule
}

// Option configures a Linter.
type Option func(*Linter)

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(l *Linter) { l.logger = logger }
}

// LintResult represents one finding.
//
// Parameters:
//   - Rule: rule name
//   - Level: error, warning or info
//   - Message: human-readable message
//   - Path: destination-relative path the finding is about
//   - Suggestion: how to fix it
type LintResult struct {
	Rule       string `json:"rule"`
	Level      string `json:"level"`
	Message    string `json:"message"`
	Path       string `json:"path,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// LintResults represents a collection of linting results.
type LintResults struct {
	Results      []LintResult `json:"results"`
	Files        int          `json:"files"`
	ErrorCount   int          `json:"error_count"`
	WarningCount int          `json:"warning_count"`
	InfoCount    int          `json:"info_count"`
}

// OK reports whether no error-level finding was recorded.
func (r *LintResults) OK() bool {
	return r.ErrorCount == 0
}

func (r *LintResults) add(res LintResult) {
	r.Results = append(r.Results, res)
	switch res.Level {
	case LevelError:
		r.ErrorCount++
	case LevelWarning:
		r.WarningCount++
	case LevelInfo:
		r.InfoCount++
	}
}

// NewLinter creates a new project linter.
func NewLinter(opts ...Option) *Linter {
	l := &Linter{
		logger:      log.Nop(),
		importRules: []rewrite.ImportRule{rewrite.NewImportRule(projectspec.DefaultPackage)},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check lints the project rooted at pfs whose package is module.
//
// Parameters:
//   - pfs: project file system rooted at the generated project
//   - module: package name, i.e. the tree is expected under src/<module>/
//
// Returns:
//   - *LintResults: findings in rule order, paths sorted within a rule
//   - error: INVALID_MODULE_NAME, or the walk failure
func (l *Linter) Check(pfs *projectfs.ProjectFS, module string) (*LintResults, error) {
	if !projectspec.ValidIdentifier(module) {
		return nil, errors.Build(errors.CodeInvalidModuleName).
			WithOp("lint.Check").
			WithMsgf("module %q is not a valid package name (try %q)", module, projectspec.Normalize(module)).
			WithDetails(module, projectspec.Normalize(module)).
			Err()
	}

	all, err := pfs.Files()
	if err != nil {
		return nil, fmt.Errorf("list project files: %w", err)
	}
	files := make([]string, 0, len(all))
	for _, f := range all {
		if !ignored(f) {
			files = append(files, f)
		}
	}

	root := path.Join("src", module)
	results := &LintResults{Results: make([]LintResult, 0), Files: len(files)}

	l.checkPackageRoot(files, root, results)
	l.checkRooting(files, root, results)
	l.checkPackaging(files, root, results)
	if err := l.checkContent(pfs, files, module, results); err != nil {
		return nil, err
	}

	l.logger.Info("lint completed",
		log.Int("files", results.Files),
		log.Int("errors", results.ErrorCount),
		log.Int("warnings", results.WarningCount))
	return results, nil
}

func ignored(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if _, ok := ignoredDirs[seg]; ok {
			return true
		}
	}
	return strings.HasSuffix(rel, ".pyc")
}

func (l *Linter) checkPackageRoot(files []string, root string, results *LintResults) {
	for _, f := range files {
		if strings.HasPrefix(f, root+"/") {
			return
		}
	}
	results.add(LintResult{
		Rule:       RulePackageRoot,
		Level:      LevelError,
		Message:    fmt.Sprintf("Package root missing or empty: %s", root),
		Path:       root,
		Suggestion: "Check the module name, or regenerate the project",
	})
}

// checkRooting flags files that are neither under the package root nor an
// allowlisted root entry.
func (l *Linter) checkRooting(files []string, root string, results *LintResults) {
	for _, f := range files {
		if strings.HasPrefix(f, root+"/") {
			continue
		}
		top, _, nested := strings.Cut(f, "/")
		if (nested && pathmap.IsRootDir(top)) || (!nested && pathmap.IsRootFile(top)) {
			continue
		}

		level := LevelWarning
		suggestion := fmt.Sprintf("Move it under %s/ or to an allowlisted location", root)
		if top == "src" {
			level = LevelError
			suggestion = fmt.Sprintf("Only %s/ belongs under src/", root)
		}
		results.add(LintResult{
			Rule:       RuleRooting,
			Level:      level,
			Message:    fmt.Sprintf("File outside the package root: %s", f),
			Path:       f,
			Suggestion: suggestion,
		})
	}
}

func (l *Linter) checkPackaging(files []string, root string, results *LintResults) {
	for _, missing := range initializer.Plan(files, root, nil) {
		results.add(LintResult{
			Rule:       RulePackaging,
			Level:      LevelError,
			Message:    fmt.Sprintf("Package directory without %s: %s", initializer.FileName, path.Dir(missing)),
			Path:       missing,
			Suggestion: fmt.Sprintf("Create an empty %s", missing),
		})
	}
}

// checkContent flags recognized placeholder tokens and default-package
// imports. The written tree cannot tell a token the materializer missed from
// one a template emitted on purpose with the "$$" escape, so any well-formed
// token with a recognized name is an error and every other name (such as a
// shell "${HOME}") is left alone.
func (l *Linter) checkContent(pfs *projectfs.ProjectFS, files []string, module string, results *LintResults) error {
	for _, f := range files {
		data, err := pfs.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}
		if templates.Classify(data) != templates.KindText {
			continue
		}
		text := string(data)

		for _, tok := range placeholder.Scan(text) {
			if !recognized(tok.Name) {
				continue
			}
			results.add(LintResult{
				Rule:       RuleLeftoverToken,
				Level:      LevelError,
				Message:    fmt.Sprintf("Unexpanded placeholder ${%s} at line %d", tok.Name, strings.Count(text[:tok.Start], "\n")+1),
				Path:       f,
				Suggestion: "Regenerate the project or replace the token by hand",
			})
		}

		if path.Ext(f) != ".py" {
			continue
		}
		for _, rule := range l.importRules {
			if rule.Package() == module || !rule.Matches(text) {
				continue
			}
			results.add(LintResult{
				Rule:       RuleDefaultImport,
				Level:      LevelWarning,
				Message:    fmt.Sprintf("Imports the default package %q instead of %q", rule.Package(), module),
				Path:       f,
				Suggestion: fmt.Sprintf("Replace 'from %s' with 'from %s'", rule.Package(), module),
			})
		}
	}
	return nil
}

func recognized(name string) bool {
	for _, k := range placeholder.Keys {
		if k == name {
			return true
		}
	}
	return false
}
