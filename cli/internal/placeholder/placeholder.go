// Package placeholder resolves ${name} tokens in template paths and content.
//
// Overview:
//   - Responsibility: Build the frozen substitution context of a run and expand tokens
//   - Key Types: Resolver, Context, Token
//   - Concurrency Model: Context values are immutable; Resolver is safe for concurrent Resolve calls
//   - Error Semantics: Expand fails with UNRESOLVED_PLACEHOLDER on an unknown or malformed token
//   - Performance Notes: Single left-to-right scan, no regex backtracking
//
// Usage:
//
//	r := placeholder.NewResolver(spec, time.Now())
//	ctx := r.Resolve(&spec.Contexts[0])
//	out, err := placeholder.Expand("class ${ContextCap}Repository:", ctx, "domain/${context}/repo.py.tmpl")
//
// Token grammar: "${" identifier "}" where identifier is [A-Za-z_][A-Za-z0-9_]*.
// "$$" is an escape for a literal "$", so "$${x}" renders as "${x}". A "$" not
// followed by "$" or "{" is literal text.
package placeholder

import (
	"sort"
	"strings"
	"time"

	"go.eggybyte.com/foundry/cli/internal/projectspec"
	"go.eggybyte.com/foundry/core/errors"
)

// Recognized token names.
const (
	KeyModuleName  = "module_name"
	KeyProjectName = "project_name"
	KeyContext     = "context"
	KeyContextCap  = "ContextCap"
	KeyAPIPrefix   = "api_prefix"
	KeyDB          = "db"
	KeyDBURL       = "db_url"
	KeyYear        = "year"
	KeyDate        = "date"
)

// Keys lists every recognized token name.
var Keys = []string{
	KeyModuleName, KeyProjectName, KeyContext, KeyContextCap,
	KeyAPIPrefix, KeyDB, KeyDBURL, KeyYear, KeyDate,
}

// ContextKeys are the tokens bound only for per-context files.
var ContextKeys = []string{KeyContext, KeyContextCap}

// Context is a frozen token-to-value mapping. The zero value is empty.
type Context struct {
	values map[string]string
}

// Lookup returns the value bound to name.
func (c Context) Lookup(name string) (string, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Keys returns the bound token names, sorted.
func (c Context) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a copy of the bindings.
func (c Context) Map() map[string]string {
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Resolver builds substitution contexts for one generation run.
//
// Parameters:
//   - spec: validated project spec
//   - now: run wall-clock, captured once so every file shares year and date
//
// Concurrency:
//   - Safe for concurrent use after construction
type Resolver struct {
	base map[string]string
}

// NewResolver captures the run-wide bindings of spec at time now.
func NewResolver(spec projectspec.ProjectSpec, now time.Time) *Resolver {
	prefix := spec.APIPrefix
	if prefix == "" {
		prefix = projectspec.DefaultAPIPrefix
	}
	return &Resolver{base: map[string]string{
		KeyModuleName:  spec.ModuleName,
		KeyProjectName: spec.Name,
		KeyAPIPrefix:   prefix,
		KeyDB:          string(spec.DB),
		KeyDBURL:       spec.DBURL(),
		KeyYear:        now.Format("2006"),
		KeyDate:        now.Format("2006_01_02"),
	}}
}

// Resolve returns the base context when bc is nil, and the per-context
// context with context and ContextCap bound otherwise.
func (r *Resolver) Resolve(bc *projectspec.BoundedContext) Context {
	values := make(map[string]string, len(r.base)+2)
	for k, v := range r.base {
		values[k] = v
	}
	if bc != nil {
		values[KeyContext] = bc.Path
		values[KeyContextCap] = bc.Cap
	}
	return Context{values: values}
}

// Token is one recognized "${name}" occurrence.
type Token struct {
	Name  string
	Start int // byte offset of '$'
	End   int // byte offset just past '}'
}

// Scan returns the well-formed tokens of text in order. Escaped "$$" pairs
// and malformed "${" sequences are skipped.
func Scan(text string) []Token {
	var tokens []Token
	for i := 0; i < len(text); {
		kind, name, end := next(text, i)
		if kind == segToken {
			tokens = append(tokens, Token{Name: name, Start: i, End: end})
		}
		i = end
	}
	return tokens
}

// Contains reports whether text holds a well-formed token for any of names.
func Contains(text string, names ...string) bool {
	for _, tok := range Scan(text) {
		for _, n := range names {
			if tok.Name == n {
				return true
			}
		}
	}
	return false
}

// Expand substitutes every token of text from ctx. source names the
// template the text came from and is reported on failure.
//
// Returns:
//   - string: expanded text; "$$" escapes become "$"
//   - error: UNRESOLVED_PLACEHOLDER naming the first unknown or malformed token
func Expand(text string, ctx Context, source string) (string, error) {
	if !strings.Contains(text, "$") {
		return text, nil
	}

	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		kind, name, end := next(text, i)
		switch kind {
		case segLiteral:
			b.WriteString(text[i:end])
		case segEscape:
			b.WriteByte('$')
		case segToken:
			v, ok := ctx.Lookup(name)
			if !ok {
				return "", unresolved(source, name, line(text, i), "is not bound for this file")
			}
			b.WriteString(v)
		case segMalformed:
			return "", unresolved(source, text[i:end], line(text, i), "is not a well-formed ${name} token")
		}
		i = end
	}
	return b.String(), nil
}

func unresolved(source, token string, lineNo int, reason string) error {
	return errors.Build(errors.CodeUnresolvedPlaceholder).
		WithOp("placeholder.Expand").
		WithPath(source).
		WithMsgf("line %d: placeholder %q %s", lineNo, token, reason).
		WithDetails(token).
		Err()
}

type segment int

const (
	segLiteral segment = iota
	segEscape
	segToken
	segMalformed
)

// next classifies the segment starting at i and returns its end offset.
func next(text string, i int) (segment, string, int) {
	if text[i] != '$' {
		j := strings.IndexByte(text[i:], '$')
		if j < 0 {
			return segLiteral, "", len(text)
		}
		return segLiteral, "", i + j
	}
	if i+1 >= len(text) {
		return segLiteral, "", i + 1
	}

	switch text[i+1] {
	case '$':
		return segEscape, "", i + 2
	case '{':
		j := i + 2
		for j < len(text) && isIdentByte(text[j], j == i+2) {
			j++
		}
		if j > i+2 && j < len(text) && text[j] == '}' {
			return segToken, text[i+2 : j], j + 1
		}
		end := strings.IndexByte(text[i:], '}')
		nl := strings.IndexByte(text[i:], '\n')
		switch {
		case end < 0 || (nl >= 0 && nl < end):
			end = i + 2
		default:
			end = i + end + 1
		}
		return segMalformed, "", end
	}
	return segLiteral, "", i + 1
}

func isIdentByte(c byte, first bool) bool {
	if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return true
	}
	return !first && c >= '0' && c <= '9'
}

func line(text string, offset int) int {
	return strings.Count(text[:offset], "\n") + 1
}
