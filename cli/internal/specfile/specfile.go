// Package specfile loads a project spec from a YAML file.
//
// Overview:
//   - Responsibility: Parse foundry project files, fill defaults, report problems as diagnostics
//   - Key Types: File, Diagnostics, Diagnostic
//   - Concurrency Model: Load is a pure function of the file; results are not shared
//   - Error Semantics: Problems are collected, not returned; Diagnostics.Err turns the
//     first error into a coded error
//   - Performance Notes: Single-pass parsing
//
// Usage:
//
//	file, diags := specfile.Load("project.yaml")
//	if diags.HasErrors() {
//	    return diags.Err()
//	}
//	spec, err := projectspec.New(file.Options())
//
// Example file:
//
//	name: Loja-API
//	module: acme_api
//	architecture: hybrid
//	contexts: [customer, order]
//	docker: false
package specfile

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"go.eggybyte.com/foundry/cli/internal/projectspec"
	"go.eggybyte.com/foundry/core/errors"
)

// File is the on-disk project description.
type File struct {
	Name         string   `yaml:"name"`
	Module       string   `yaml:"module,omitempty"`
	Architecture string   `yaml:"architecture,omitempty"`
	ORM          string   `yaml:"orm,omitempty"`
	DB           string   `yaml:"db,omitempty"`
	Context      string   `yaml:"context,omitempty"`
	Contexts     []string `yaml:"contexts,omitempty"`
	APIPrefix    string   `yaml:"api_prefix,omitempty"`
	Venv         *bool    `yaml:"venv,omitempty"`
	Docker       *bool    `yaml:"docker,omitempty"`
}

var knownKeys = map[string]struct{}{
	"name": {}, "module": {}, "architecture": {}, "orm": {}, "db": {},
	"context": {}, "contexts": {}, "api_prefix": {}, "venv": {}, "docker": {},
}

// Options converts f into projectspec options. Venv defaults to false and
// Docker to true.
func (f *File) Options() projectspec.Options {
	opts := projectspec.Options{
		Name:         f.Name,
		Module:       f.Module,
		Architecture: f.Architecture,
		ORM:          f.ORM,
		DB:           f.DB,
		Context:      f.Context,
		Contexts:     append([]string(nil), f.Contexts...),
		APIPrefix:    f.APIPrefix,
		Docker:       true,
	}
	if f.Venv != nil {
		opts.Venv = *f.Venv
	}
	if f.Docker != nil {
		opts.Docker = *f.Docker
	}
	return opts
}

// Diagnostic represents a validation issue.
type Diagnostic struct {
	Severity   DiagnosticSeverity `json:"severity"`
	Code       errors.Code        `json:"code,omitempty"`
	Message    string             `json:"message"`
	Path       string             `json:"path,omitempty"`
	Suggestion string             `json:"suggestion,omitempty"`
}

// DiagnosticSeverity represents the severity of a diagnostic.
type DiagnosticSeverity string

// Severities.
const (
	SeverityError   DiagnosticSeverity = "error"
	SeverityWarning DiagnosticSeverity = "warning"
	SeverityInfo    DiagnosticSeverity = "info"
)

// Diagnostics represents a collection of validation issues.
type Diagnostics struct {
	items []Diagnostic
}

// NewDiagnostics creates a new diagnostics collection.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{items: make([]Diagnostic, 0)}
}

// Add records a diagnostic.
func (d *Diagnostics) Add(severity DiagnosticSeverity, code errors.Code, message, path, suggestion string) {
	d.items = append(d.items, Diagnostic{
		Severity:   severity,
		Code:       code,
		Message:    message,
		Path:       path,
		Suggestion: suggestion,
	})
}

// AddError records an error diagnostic.
func (d *Diagnostics) AddError(code errors.Code, message, path, suggestion string) {
	d.Add(SeverityError, code, message, path, suggestion)
}

// AddWarning records a warning diagnostic.
func (d *Diagnostics) AddWarning(message, path, suggestion string) {
	d.Add(SeverityWarning, "", message, path, suggestion)
}

// AddInfo records an informational diagnostic.
func (d *Diagnostics) AddInfo(message, path, suggestion string) {
	d.Add(SeverityInfo, "", message, path, suggestion)
}

// HasErrors reports whether any error was recorded.
func (d *Diagnostics) HasErrors() bool {
	for _, item := range d.items {
		if item.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Items returns a copy of all diagnostics in the order they were recorded.
func (d *Diagnostics) Items() []Diagnostic {
	result := make([]Diagnostic, len(d.items))
	copy(result, d.items)
	return result
}

// Err returns the first error diagnostic as a coded error, or nil.
func (d *Diagnostics) Err() error {
	for _, item := range d.items {
		if item.Severity != SeverityError {
			continue
		}
		b := errors.Build(item.Code).WithOp("specfile.Load").WithMsg(item.Message)
		if item.Path != "" {
			b = b.WithPath(item.Path)
		}
		return b.Err()
	}
	return nil
}

// Load reads and validates the project file at path.
//
// Returns:
//   - *File: parsed file with defaults applied; nil when it cannot be parsed
//   - *Diagnostics: problems found, never nil
func Load(path string) (*File, *Diagnostics) {
	data, err := os.ReadFile(path)
	if err != nil {
		diags := NewDiagnostics()
		diags.AddError(errors.CodeInvalidProjectName, fmt.Sprintf("Failed to read project file: %v", err), path, "Check the path passed to --spec-file")
		return nil, diags
	}
	return Parse(data, path)
}

// Parse validates the YAML document data. source names it in diagnostics.
func Parse(data []byte, source string) (*File, *Diagnostics) {
	diags := NewDiagnostics()

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		diags.AddError(errors.CodeInvalidProjectName, fmt.Sprintf("Failed to parse YAML: %v", err), source, "Check YAML syntax")
		return nil, diags
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		diags.AddError(errors.CodeInvalidProjectName, "Project file must be a mapping", source, "Start the file with 'name: <project>'")
		return nil, diags
	}
	checkKeys(doc.Content[0], diags)

	var file File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&file); err != nil {
		diags.AddError(errors.CodeInvalidProjectName, fmt.Sprintf("Failed to decode project file: %v", err), source, "Check field types")
		return nil, diags
	}

	applyDefaults(&file, diags)
	validate(&file, diags)
	return &file, diags
}

// checkKeys warns about top-level keys the schema does not know.
func checkKeys(mapping *yaml.Node, diags *Diagnostics) {
	var unknown []string
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i].Value
		if _, ok := knownKeys[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		diags.AddWarning(fmt.Sprintf("Unknown key %q is ignored", key), key, "Check the spelling against the documented keys")
	}
}

func applyDefaults(file *File, diags *Diagnostics) {
	file.Name = strings.TrimSpace(file.Name)
	if file.Context == "" && len(file.Contexts) == 0 {
		file.Contexts = []string{projectspec.DefaultContext}
		diags.AddInfo(fmt.Sprintf("No bounded context given, using %q", projectspec.DefaultContext), "contexts", "Add 'contexts: [...]' to choose your own")
	}
}

func validate(file *File, diags *Diagnostics) {
	if file.Name == "" {
		diags.AddError(errors.CodeInvalidProjectName, "name is required", "name", "Set 'name: <project>'")
	}
	if file.Module != "" && !projectspec.ValidIdentifier(file.Module) {
		diags.AddError(errors.CodeInvalidModuleName,
			fmt.Sprintf("module %q is not a valid package name", file.Module), "module",
			fmt.Sprintf("Use %q", projectspec.Normalize(file.Module)))
	}
	if file.Architecture != "" {
		if _, err := projectspec.ParseArchitecture(file.Architecture); err != nil {
			diags.AddError(errors.CodeUnknownArchitecture,
				fmt.Sprintf("unknown architecture %q", file.Architecture), "architecture",
				"Use one of hybrid, ddd, hexagonal, mvc")
		}
	}
	if file.ORM != "" {
		if _, err := projectspec.ParseORM(file.ORM); err != nil {
			diags.AddError(errors.CodeUnknownORM, fmt.Sprintf("unknown orm %q", file.ORM), "orm", "Use sqlalchemy or peewee")
		}
	}
	if file.DB != "" {
		if _, err := projectspec.ParseDB(file.DB); err != nil {
			diags.AddError(errors.CodeUnknownDB, fmt.Sprintf("unknown db %q", file.DB), "db", "Use postgresql or mysql")
		}
	}
	validateContexts(file, diags)
}

func validateContexts(file *File, diags *Diagnostics) {
	names, err := projectspec.ResolveContextInput(file.Context, file.Contexts)
	if err != nil {
		diags.AddError(errors.CodeOf(err), "context and contexts are mutually exclusive", "contexts", "Keep only 'contexts: [...]'")
		return
	}

	seen := make(map[string]string, len(names))
	for i, name := range names {
		field := fmt.Sprintf("contexts[%d]", i)
		bc, err := projectspec.NewBoundedContext(name)
		if err != nil {
			diags.AddError(errors.CodeInvalidContextName,
				fmt.Sprintf("context %q is not a valid package name", name), field,
				"Use letters, digits and separators, starting with a letter")
			continue
		}
		if prev, dup := seen[bc.Path]; dup {
			diags.AddError(errors.CodeDuplicateContextName,
				fmt.Sprintf("contexts %q and %q both become %q", prev, name, bc.Path), field,
				"Remove one of them")
			continue
		}
		seen[bc.Path] = name
	}
}
