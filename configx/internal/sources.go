// Package internal provides internal implementation details for configx.
//
// Overview:
//   - Responsibility: Implement configuration sources (Env, File, Map)
//   - Key Types: Source, EnvSource, FileSource, MapSource
//   - Concurrency Model: Sources are read-only after construction
//   - Error Semantics: Load returns errors for unreadable or malformed input
package internal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source produces a flat key/value snapshot.
type Source interface {
	Name() string
	Load(ctx context.Context) (map[string]string, error)
}

// EnvOptions configures environment variable source behavior.
type EnvOptions struct {
	Prefix  string          // Only variables with this prefix are read; it is stripped from keys
	Environ func() []string // Defaults to os.Environ
}

// EnvSource loads configuration from environment variables.
type EnvSource struct {
	prefix  string
	environ func() []string
}

// NewEnvSource creates a new environment variable source.
func NewEnvSource(opts EnvOptions) *EnvSource {
	environ := opts.Environ
	if environ == nil {
		environ = os.Environ
	}
	return &EnvSource{prefix: opts.Prefix, environ: environ}
}

// Name implements Source.
func (s *EnvSource) Name() string {
	return "env:" + s.prefix + "*"
}

// Load reads configuration from environment variables.
func (s *EnvSource) Load(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	config := make(map[string]string)
	for _, env := range s.environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, s.prefix) {
			continue
		}
		config[strings.TrimPrefix(key, s.prefix)] = value
	}
	return config, nil
}

// FileOptions configures file source behavior.
type FileOptions struct {
	Optional bool // A missing file yields an empty snapshot instead of an error
}

// FileSource loads configuration from a YAML file. Nested mappings are
// flattened into upper-case keys joined with "_", so
//
//	log:
//	  level: debug
//
// yields LOG_LEVEL=debug. Sequences are joined with ",".
type FileSource struct {
	path     string
	optional bool
	fsys     fs.FS
}

// NewFileSource creates a new file source.
func NewFileSource(path string, opts FileOptions) *FileSource {
	return &FileSource{path: path, optional: opts.Optional}
}

// NewFSFileSource reads path from fsys instead of the OS filesystem.
func NewFSFileSource(fsys fs.FS, path string, opts FileOptions) *FileSource {
	return &FileSource{path: path, optional: opts.Optional, fsys: fsys}
}

// Name implements Source.
func (s *FileSource) Name() string {
	return "file:" + s.path
}

// Load reads and flattens the file.
func (s *FileSource) Load(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	var err error
	if s.fsys != nil {
		data, err = fs.ReadFile(s.fsys, s.path)
	} else {
		data, err = os.ReadFile(s.path)
	}
	if err != nil {
		if s.optional && errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", s.path, err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", s.path, err)
	}

	config := make(map[string]string)
	flatten("", doc, config)
	return config, nil
}

func flatten(prefix string, node any, out map[string]string) {
	switch v := node.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			key := strings.ToUpper(strings.ReplaceAll(k, "-", "_"))
			if prefix != "" {
				key = prefix + "_" + key
			}
			flatten(key, v[k], out)
		}
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
		out[prefix] = strings.Join(parts, ",")
	case nil:
		out[prefix] = ""
	default:
		out[prefix] = fmt.Sprint(v)
	}
}

// MapSource serves a fixed snapshot, typically CLI flag overrides.
type MapSource struct {
	name   string
	values map[string]string
}

// NewMapSource creates a source from a copy of values.
func NewMapSource(name string, values map[string]string) *MapSource {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &MapSource{name: name, values: copied}
}

// Name implements Source.
func (s *MapSource) Name() string {
	return s.name
}

// Load returns a copy of the fixed snapshot.
func (s *MapSource) Load(context.Context) (map[string]string, error) {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}

// Merge loads sources in order; later sources override earlier ones key by key.
func Merge(ctx context.Context, sources []Source) (map[string]string, error) {
	merged := make(map[string]string)
	for _, src := range sources {
		snapshot, err := src.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name(), err)
		}
		for k, v := range snapshot {
			merged[k] = v
		}
	}
	return merged, nil
}
