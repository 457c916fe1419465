package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/lithammer/dedent"
	"go.uber.org/goleak"

	"go.eggybyte.com/foundry/cli/internal/ui"
	"go.eggybyte.com/foundry/core/errors"
	"go.eggybyte.com/foundry/testingx"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// execute runs the CLI with args and env as the FOUNDRY_* environment.
func execute(t *testing.T, env []string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	var out bytes.Buffer
	restore := ui.SetOutput(&out, &out, strings.NewReader(""))
	defer restore()

	root := newRootCmd(&app{environ: func() []string { return env }})
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNew_CreatesProject(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, nil, "new", "Loja-API", "--contexts", "customer,order", "-o", dir, "--non-interactive")
	testingx.AssertNoError(t, err)

	for _, rel := range []string{
		"pyproject.toml",
		"Dockerfile",
		"scripts/dev.sh",
		"src/loja_api/__init__.py",
		"src/loja_api/main.py",
		"src/loja_api/domain/customer/entities.py",
		"src/loja_api/domain/order/entities.py",
		"src/loja_api/api/routes/order.py",
	} {
		if _, err := os.Stat(filepath.Join(dir, "Loja-API", filepath.FromSlash(rel))); err != nil {
			t.Errorf("Expected %s to exist: %v", rel, err)
		}
	}
	if !strings.Contains(out, "Next steps:") {
		t.Errorf("Expected next steps in output, got:\n%s", out)
	}
}

func TestNew_SettingsFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	env := []string{"FOUNDRY_ARCH=mvc", "FOUNDRY_DB=mysql", "HOME=/nowhere"}
	_, err := execute(t, env, "new", "shop", "-o", dir, "--no-docker")
	testingx.AssertNoError(t, err)

	if _, err := os.Stat(filepath.Join(dir, "shop", "src", "shop", "controllers", "customer.py")); err != nil {
		t.Errorf("Expected mvc layout: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "shop", "Dockerfile")); !os.IsNotExist(err) {
		t.Errorf("Expected no Dockerfile with --no-docker, got err=%v", err)
	}
}

func TestNew_FlagsOverrideSettings(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, []string{"FOUNDRY_ARCH=mvc"}, "new", "shop", "-o", dir, "--arch", "ddd")
	testingx.AssertNoError(t, err)

	if _, err := os.Stat(filepath.Join(dir, "shop", "src", "shop", "infrastructure", "customer", "repository.py")); err != nil {
		t.Errorf("Expected ddd layout: %v", err)
	}
}

func TestNew_InvalidSettings(t *testing.T) {
	_, err := execute(t, []string{"FOUNDRY_ARCH=layered"}, "new", "shop", "-o", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "failed to load settings") {
		t.Errorf("Expected settings error, got %v", err)
	}
}

func TestNew_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code errors.Code
	}{
		{"conflicting contexts", []string{"--context", "a", "--contexts", "b,c"}, errors.CodeConflictingContextInput},
		{"duplicate contexts", []string{"--contexts", "order-item,order_item"}, errors.CodeDuplicateContextName},
		{"bad module", []string{"--module", "9shop"}, errors.CodeInvalidModuleName},
		{"unknown orm", []string{"--orm", "tortoise"}, errors.CodeUnknownORM},
		{"missing templates", []string{"--templates", "/nonexistent/templates"}, errors.CodeTemplateRootNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			args := append([]string{"new", "shop", "-o", dir}, tt.args...)
			_, err := execute(t, nil, args...)
			testingx.AssertError(t, err, tt.code)

			entries, _ := os.ReadDir(dir)
			if len(entries) != 0 {
				t.Errorf("Expected nothing written, found %d entries", len(entries))
			}
		})
	}
}

func TestNew_DryRunPrintsTree(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, nil, "new", "shop", "-o", dir, "--dry-run")
	testingx.AssertNoError(t, err)

	if _, err := os.Stat(filepath.Join(dir, "shop")); !os.IsNotExist(err) {
		t.Errorf("Dry run must not create the destination, got err=%v", err)
	}
	for _, want := range []string{"shop", "pyproject.toml", "Would create"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
}

func TestNew_NonEmptyDestination(t *testing.T) {
	dir := t.TempDir()
	testingx.WriteTree(t, filepath.Join(dir, "shop"), map[string]string{"notes.txt": "keep"})

	_, err := execute(t, nil, "new", "shop", "-o", dir, "--non-interactive")
	testingx.AssertError(t, err, errors.CodeDestinationAlreadyExists)

	_, err = execute(t, nil, "new", "shop", "-o", dir, "--force")
	testingx.AssertNoError(t, err)
	if _, err := os.Stat(filepath.Join(dir, "shop", "notes.txt")); err != nil {
		t.Errorf("Expected existing file to survive: %v", err)
	}
}

func TestNew_SpecFile(t *testing.T) {
	dir := t.TempDir()
	specPath := filepath.Join(dir, "project.yaml")
	doc := dedent.Dedent(`
		name: Loja-API
		module: acme_api
		architecture: hexagonal
		contexts: [billing]
	`)
	if err := os.WriteFile(specPath, []byte(doc), 0o644); err != nil {
		t.Fatalf("Failed to write spec file: %v", err)
	}

	_, err := execute(t, nil, "new", "--spec-file", specPath, "-o", dir, "--contexts", "invoice")
	testingx.AssertNoError(t, err)

	root := filepath.Join(dir, "Loja-API", "src", "acme_api")
	if _, err := os.Stat(filepath.Join(root, "ports", "invoice", "repository.py")); err != nil {
		t.Errorf("Expected --contexts to override the file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "ports", "billing")); !os.IsNotExist(err) {
		t.Errorf("Expected no billing context, got err=%v", err)
	}
}

func TestNew_SpecFileErrors(t *testing.T) {
	dir := t.TempDir()
	specPath := filepath.Join(dir, "project.yaml")
	if err := os.WriteFile(specPath, []byte("name: shop\ndb: sqlite\n"), 0o644); err != nil {
		t.Fatalf("Failed to write spec file: %v", err)
	}

	_, err := execute(t, nil, "new", "--spec-file", specPath, "-o", dir)
	testingx.AssertError(t, err, errors.CodeUnknownDB)
}

func TestNew_JSONOutput(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, nil, "new", "shop", "-o", dir, "--json")
	testingx.AssertNoError(t, err)

	var last struct {
		Level string `json:"level"`
		Data  struct {
			ModuleName   string   `json:"module_name"`
			Initializers []string `json:"initializers"`
		} `json:"data"`
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
		t.Fatalf("Expected JSON lines, got %q: %v", out, err)
	}
	if last.Level != "success" || last.Data.ModuleName != "shop" || len(last.Data.Initializers) == 0 {
		t.Errorf("unexpected result message: %+v", last)
	}
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, nil, "new", "Loja-API", "-o", dir)
	testingx.AssertNoError(t, err)
	project := filepath.Join(dir, "Loja-API")

	out, err := execute(t, nil, "check", project)
	testingx.AssertNoError(t, err)
	if !strings.Contains(out, "module loja_api") {
		t.Errorf("Expected inferred module in output:\n%s", out)
	}

	if err := os.Remove(filepath.Join(project, "src", "loja_api", "domain", "__init__.py")); err != nil {
		t.Fatalf("Failed to remove initializer: %v", err)
	}
	out, err = execute(t, nil, "check", project, "--module", "loja_api")
	if err == nil {
		t.Fatal("Expected check to fail without domain/__init__.py")
	}
	if !strings.Contains(out, "src/loja_api/domain/__init__.py") {
		t.Errorf("Expected the missing initializer to be reported:\n%s", out)
	}
}

func TestInferModule(t *testing.T) {
	tests := []struct {
		name    string
		tree    map[string]string
		want    string
		wantErr bool
	}{
		{"single package", map[string]string{"src/shop/__init__.py": ""}, "shop", false},
		{"ignores invalid names", map[string]string{"src/shop/__init__.py": "", "src/my-lib/": ""}, "shop", false},
		{"no src", map[string]string{"README.md": ""}, "", true},
		{"ambiguous", map[string]string{"src/a/__init__.py": "", "src/b/__init__.py": ""}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := testingx.WriteTree(t, t.TempDir(), tt.tree)
			got, err := inferModule(dir)
			if tt.wantErr {
				testingx.AssertError(t, err, errors.CodeInvalidModuleName)
				return
			}
			testingx.AssertNoError(t, err)
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTemplatesCommand(t *testing.T) {
	out, err := execute(t, nil, "templates", "--json")
	testingx.AssertNoError(t, err)

	var msg struct {
		Data []string `json:"data"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &msg); err != nil {
		t.Fatalf("Expected one JSON message, got %q: %v", out, err)
	}
	if !contains(msg.Data, "common/pyproject.toml.tmpl") {
		t.Errorf("Expected embedded pyproject template in %v", msg.Data)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, nil, "version")
	testingx.AssertNoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if diff := cmp.Diff(2, len(lines)); diff != "" {
		t.Fatalf("line count mismatch (-want +got):\n%s\n%s", diff, out)
	}
	if !strings.HasPrefix(lines[0], "foundry version ") {
		t.Errorf("unexpected version line %q", lines[0])
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
