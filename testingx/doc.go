// Package testingx provides testing helpers and fakes for foundry packages.
//
// # Overview
//
// testingx contains small utilities to speed up unit tests: a mock logger
// with in-memory capture, assertions for core/errors codes, and helpers that
// write and read whole directory trees so materialization results can be
// compared with cmp.Diff.
//
// # Usage
//
//	logger := testingx.NewMockLogger(t)
//	root := testingx.WriteTree(t, t.TempDir(), map[string]string{"common/README.md.tmpl": "# ${project_name}"})
//	got := testingx.ReadTree(t, out)
//
// # Layer
//
// testingx is imported from _test.go files only and depends on core modules.
package testingx
