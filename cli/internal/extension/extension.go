// Package extension appends a source extension to extensionless files that
// look like code.
//
// Overview:
//   - Responsibility: Decide, from content alone, whether an extensionless file is source code
//   - Key Types: Classifier, Decision, PythonClassifier
//   - Concurrency Model: Classifiers are values without state; safe for concurrent use
//   - Error Semantics: None; an undecided file keeps its path
//   - Performance Notes: Reads at most MaxLines lines of content
//
// Usage:
//
//	dest = extension.Infer(dest, content, extension.PythonClassifier{})
package extension

import (
	"bufio"
	"bytes"
	"path"
	"regexp"
)

// Decision is the outcome of classifying one file.
type Decision struct {
	Ext    string // extension to append, including the dot; empty when undecided
	Line   int    // 1-based line that matched, 0 when undecided
	Reason string // matched construct, for diagnostics
}

// Matched reports whether the classifier recognized the content.
func (d Decision) Matched() bool {
	return d.Ext != ""
}

// Classifier recognizes source files of one ecosystem.
type Classifier interface {
	Classify(content []byte) Decision
}

// DefaultMaxLines bounds how far a classifier looks into a file.
const DefaultMaxLines = 50

// pythonRules are tried in order against each line.
var pythonRules = []struct {
	reason  string
	pattern *regexp.Regexp
}{
	{"import", regexp.MustCompile(`^\s*import\s+[A-Za-z_][\w.]*`)},
	{"from-import", regexp.MustCompile(`^\s*from\s+\.*[A-Za-z_][\w.]*\s+import\s+\S`)},
	{"async-def", regexp.MustCompile(`^\s*async\s+def\s+[A-Za-z_]\w*\s*\(`)},
	{"def", regexp.MustCompile(`^\s*def\s+[A-Za-z_]\w*\s*\(`)},
	{"class", regexp.MustCompile(`^\s*class\s+[A-Za-z_]\w*\s*[(:]`)},
}

// PythonClassifier recognizes Python modules by an import statement or a
// function or class definition at the start of a line.
type PythonClassifier struct {
	// MaxLines is the number of leading lines inspected. Zero means DefaultMaxLines.
	MaxLines int
}

// Classify implements Classifier.
func (c PythonClassifier) Classify(content []byte) Decision {
	limit := c.MaxLines
	if limit <= 0 {
		limit = DefaultMaxLines
	}

	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for n := 1; n <= limit && sc.Scan(); n++ {
		line := sc.Bytes()
		for _, rule := range pythonRules {
			if rule.pattern.Match(line) {
				return Decision{Ext: ".py", Line: n, Reason: rule.reason}
			}
		}
	}
	return Decision{}
}

// Infer returns dest with the classifier's extension appended when dest has
// no extension and c recognizes content. Otherwise dest is returned as is.
// Dot files such as ".env" count as having no extension.
func Infer(dest string, content []byte, c Classifier) string {
	if c == nil || HasExtension(dest) {
		return dest
	}
	if d := c.Classify(content); d.Matched() {
		return dest + d.Ext
	}
	return dest
}

// HasExtension reports whether the base name of p carries an extension.
// A leading dot alone does not count.
func HasExtension(p string) bool {
	base := path.Base(p)
	return path.Ext(base) != "" && path.Ext(base) != base
}
