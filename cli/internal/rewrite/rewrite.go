// Package rewrite transforms template text into generated file content.
//
// Overview:
//   - Responsibility: Placeholder substitution followed by an ordered list of rewrite rules
//   - Key Types: Rewriter, Rule, ImportRule
//   - Concurrency Model: Rewriter and rules are immutable; Rewrite is safe for concurrent use
//   - Error Semantics: UNRESOLVED_PLACEHOLDER aborts; rules cannot fail
//
// Usage:
//
//	rw := rewrite.New(rewrite.DefaultRules()...)
//	out, err := rw.Rewrite("api/router.py.tmpl", text, ctx)
//
// Rules run strictly after substitution so they only see resolved text and
// never touch a module name that substitution produced.
package rewrite

import (
	"regexp"

	"go.eggybyte.com/foundry/cli/internal/placeholder"
	"go.eggybyte.com/foundry/cli/internal/projectspec"
)

// Rule is one post-substitution rewrite.
type Rule interface {
	// Name identifies the rule in reports and logs.
	Name() string
	// Apply returns content rewritten for ctx.
	Apply(content string, ctx placeholder.Context) string
}

// Rewriter applies substitution then rules, in order.
type Rewriter struct {
	rules []Rule
}

// New creates a Rewriter running rules in the given order.
func New(rules ...Rule) *Rewriter {
	return &Rewriter{rules: append([]Rule(nil), rules...)}
}

// DefaultRules returns the rules applied to every text template.
func DefaultRules() []Rule {
	return []Rule{NewImportRule(projectspec.DefaultPackage)}
}

// Rules returns the configured rules in application order.
func (r *Rewriter) Rules() []Rule {
	return append([]Rule(nil), r.rules...)
}

// Rewrite expands the tokens of content from ctx and then applies each rule.
// source is the template path reported on failure.
func (r *Rewriter) Rewrite(source, content string, ctx placeholder.Context) (string, error) {
	out, err := placeholder.Expand(content, ctx, source)
	if err != nil {
		return "", err
	}
	for _, rule := range r.rules {
		out = rule.Apply(out, ctx)
	}
	return out, nil
}

// ImportRule points import statements at a hard-coded package to the
// generated module instead. Only statement starts are matched, optionally
// indented:
//
//	import app            -> import acme_api
//	import app.core as c  -> import acme_api.core as c
//	from app import x     -> from acme_api import x
//	from app.db import y  -> from acme_api.db import y
//
// Identifiers that merely contain the package name (apple, app_config,
// myapp) and occurrences outside import statements are left alone.
type ImportRule struct {
	pkg     string
	pattern *regexp.Regexp
}

// NewImportRule creates a rule rewriting imports of pkg.
func NewImportRule(pkg string) ImportRule {
	return ImportRule{
		pkg:     pkg,
		pattern: regexp.MustCompile(`(?m)^([ \t]*(?:from|import)[ \t]+)` + regexp.QuoteMeta(pkg) + `\b`),
	}
}

// Name implements Rule.
func (r ImportRule) Name() string {
	return "import:" + r.pkg
}

// Package returns the package this rule rewrites.
func (r ImportRule) Package() string {
	return r.pkg
}

// Apply implements Rule. It is a no-op when the module is the package itself.
func (r ImportRule) Apply(content string, ctx placeholder.Context) string {
	module, ok := ctx.Lookup(placeholder.KeyModuleName)
	if !ok || module == r.pkg {
		return content
	}
	return r.pattern.ReplaceAllString(content, "${1}"+module)
}

// Matches reports whether content still imports the package.
func (r ImportRule) Matches(content string) bool {
	return r.pattern.MatchString(content)
}
