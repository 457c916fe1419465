// Package configx loads foundry settings from layered sources into tagged structs.
//
// Overview:
//   - Responsibility: Merge env, YAML file and override sources, bind to struct, validate
//   - Key Types: Source, EnvSource, FileSource, MapSource
//   - Concurrency Model: Load is stateless; sources are read-only after construction
//   - Error Semantics: Source, binding and validation failures are returned wrapped
//
// Usage:
//
//	type Settings struct {
//	    Arch string `env:"ARCH" default:"hybrid" validate:"oneof=ddd hexagonal mvc hybrid"`
//	}
//	var s Settings
//	err := configx.Load(ctx, &s,
//	    configx.NewFileSource(path, configx.FileOptions{Optional: true}),
//	    configx.NewEnvSource(configx.EnvOptions{Prefix: "FOUNDRY_"}),
//	)
package configx

import (
	"context"
	"fmt"
	"io/fs"

	"go.eggybyte.com/foundry/configx/internal"
)

// Source produces a flat key/value snapshot.
type Source = internal.Source

// EnvOptions configures an EnvSource.
type EnvOptions = internal.EnvOptions

// FileOptions configures a FileSource.
type FileOptions = internal.FileOptions

// NewEnvSource reads variables carrying opts.Prefix, with the prefix stripped.
func NewEnvSource(opts EnvOptions) *internal.EnvSource {
	return internal.NewEnvSource(opts)
}

// NewFileSource reads a YAML file and flattens nested keys.
func NewFileSource(path string, opts FileOptions) *internal.FileSource {
	return internal.NewFileSource(path, opts)
}

// NewFSFileSource is NewFileSource over fsys.
func NewFSFileSource(fsys fs.FS, path string, opts FileOptions) *internal.FileSource {
	return internal.NewFSFileSource(fsys, path, opts)
}

// NewMapSource serves a fixed snapshot.
func NewMapSource(name string, values map[string]string) *internal.MapSource {
	return internal.NewMapSource(name, values)
}

// Snapshot merges sources in order, later sources winning.
func Snapshot(ctx context.Context, sources ...Source) (map[string]string, error) {
	return internal.Merge(ctx, sources)
}

// Load merges sources, binds the result into target by env/default tags and
// validates target with validate tags.
func Load(ctx context.Context, target any, sources ...Source) error {
	snapshot, err := internal.Merge(ctx, sources)
	if err != nil {
		return err
	}
	if err := internal.BindToStruct(snapshot, target); err != nil {
		return fmt.Errorf("bind configuration: %w", err)
	}
	return ValidateStruct(nil, target)
}

// Bind binds snapshot into target without validation.
func Bind(snapshot map[string]string, target any) error {
	return internal.BindToStruct(snapshot, target)
}
