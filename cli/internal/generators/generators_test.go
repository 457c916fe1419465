package generators

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"go.eggybyte.com/foundry/cli/internal/initializer"
	"go.eggybyte.com/foundry/cli/internal/pathmap"
	"go.eggybyte.com/foundry/cli/internal/projectspec"
	"go.eggybyte.com/foundry/core/errors"
	"go.eggybyte.com/foundry/testingx"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = func() time.Time {
	return time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
}

func newSpec(t *testing.T, opts projectspec.Options) projectspec.ProjectSpec {
	t.Helper()
	spec, err := projectspec.New(opts)
	testingx.AssertNoError(t, err)
	return spec
}

func scenarioB(t *testing.T) projectspec.ProjectSpec {
	return newSpec(t, projectspec.Options{
		Name:         "Loja-API",
		Module:       "acme_api",
		Architecture: "hybrid",
		Contexts:     []string{"customer", "order"},
	})
}

func TestScenarioA(t *testing.T) {
	fsys := testingx.TemplateFS(map[string]string{
		"domain/${context}/entities.py.tmpl": `
			class ${ContextCap}:
			    pass
		`,
	})
	spec := newSpec(t, projectspec.Options{Name: "orium-customer", Context: "customer"})
	if spec.ModuleName != "orium_customer" {
		t.Fatalf("Expected module orium_customer, got %q", spec.ModuleName)
	}

	dest := filepath.Join(t.TempDir(), "orium-customer")
	report, err := NewMaterializer(Options{Now: fixedNow}).Materialize(context.Background(), fsys, spec, dest)
	testingx.AssertNoError(t, err)

	want := map[string]string{
		"src/orium_customer/domain/customer/entities.py": "class Customer:\n    pass\n",
		"src/orium_customer/domain/customer/__init__.py": "",
		"src/orium_customer/domain/__init__.py":          "",
		"src/orium_customer/__init__.py":                 "",
	}
	if diff := cmp.Diff(want, testingx.ReadTree(t, dest)); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(testingx.Paths(want), report.Created); diff != "" {
		t.Errorf("Created mismatch (-want +got):\n%s", diff)
	}
}

func TestScenarioB_EmbeddedHybrid(t *testing.T) {
	spec := scenarioB(t)
	dest := filepath.Join(t.TempDir(), "loja")

	report, err := NewMaterializer(Options{Now: fixedNow}).Materialize(context.Background(), nil, spec, dest)
	testingx.AssertNoError(t, err)

	tree := testingx.ReadTree(t, dest)
	for _, p := range []string{
		"pyproject.toml",
		"README.md",
		"scripts/dev.sh",
		"tests/test_health.py",
		"src/acme_api/__init__.py",
		"src/acme_api/main.py",
		"src/acme_api/core/database.py",
		"src/acme_api/api/router.py",
		"src/acme_api/api/routes/customer.py",
		"src/acme_api/api/routes/order.py",
		"src/acme_api/domain/customer/entities.py",
		"src/acme_api/domain/order/entities.py",
		"src/acme_api/adapters/order/repository.py",
		"src/acme_api/application/customer/services.py",
	} {
		if _, ok := tree[p]; !ok {
			t.Errorf("Expected %s to be generated", p)
		}
	}
	for _, p := range []string{"Dockerfile", ".dockerignore", "docker-compose.yml", "src/loja_api/main.py"} {
		if _, ok := tree[p]; ok {
			t.Errorf("Did not expect %s", p)
		}
	}

	if !strings.Contains(tree["src/acme_api/domain/customer/entities.py"], "class Customer:") {
		t.Error("customer entities should use ContextCap Customer")
	}
	if !strings.Contains(tree["src/acme_api/domain/order/entities.py"], "class Order:") {
		t.Error("order entities should use ContextCap Order")
	}

	if report.PerContext["customer"] != report.PerContext["order"] || report.PerContext["customer"] == 0 {
		t.Errorf("Expected equal non-zero fan-out sets, got %v", report.PerContext)
	}
	routers := 0
	for _, p := range report.Created {
		if path.Base(p) == "router.py" {
			routers++
		}
	}
	if routers != 1 {
		t.Errorf("Expected exactly one skeleton router, got %d", routers)
	}
}

func TestFanOutCount(t *testing.T) {
	fsys := testingx.TemplateFS(map[string]string{
		"domain/${context}/entities.py.tmpl": "class ${ContextCap}: ...\n",
		"api/routes/${context}.py.tmpl":      "# ${context}\n",
		"api/router.py.tmpl":                 "from ${module_name}.api import routes\n",
	})
	spec := scenarioB(t)

	report, err := NewMaterializer(Options{DryRun: true, Now: fixedNow}).Materialize(context.Background(), fsys, spec, t.TempDir())
	testingx.AssertNoError(t, err)

	if diff := cmp.Diff(map[string]int{"customer": 2, "order": 2}, report.PerContext); diff != "" {
		t.Errorf("PerContext mismatch (-want +got):\n%s", diff)
	}
	if report.Skeleton != 1 {
		t.Errorf("Expected one skeleton file, got %d", report.Skeleton)
	}

	for dest, want := range map[string]string{
		"src/acme_api/domain/customer/entities.py": "class Customer: ...\n",
		"src/acme_api/domain/order/entities.py":    "class Order: ...\n",
		"src/acme_api/api/routes/order.py":         "# order\n",
	} {
		f, ok := report.File(dest)
		if !ok {
			t.Errorf("missing %s", dest)
			continue
		}
		if string(f.Content) != want {
			t.Errorf("%s = %q, want %q", dest, f.Content, want)
		}
	}
}

// allCombinations renders every embedded selection without touching disk.
func allCombinations(t *testing.T, fn func(t *testing.T, spec projectspec.ProjectSpec, report *Report)) {
	t.Helper()
	for _, arch := range projectspec.Architectures() {
		for _, orm := range []string{"sqlalchemy", "peewee"} {
			for _, db := range []string{"postgresql", "mysql"} {
				name := fmt.Sprintf("%s-%s-%s", arch, orm, db)
				t.Run(name, func(t *testing.T) {
					spec := newSpec(t, projectspec.Options{
						Name:         "Loja-API",
						Module:       "acme_api",
						Architecture: string(arch),
						ORM:          orm,
						DB:           db,
						Contexts:     []string{"customer", "order-item"},
						Docker:       true,
					})
					report, err := NewMaterializer(Options{DryRun: true, Now: fixedNow}).
						Materialize(context.Background(), nil, spec, filepath.Join(t.TempDir(), "out"))
					testingx.AssertNoError(t, err)
					fn(t, spec, report)
				})
			}
		}
	}
}

func TestEmbedded_NoLeftoverTokens(t *testing.T) {
	allCombinations(t, func(t *testing.T, _ projectspec.ProjectSpec, report *Report) {
		for _, f := range report.Files {
			if strings.Contains(string(f.Content), "${") {
				t.Errorf("%s still contains a placeholder", f.Path)
			}
			if strings.Contains(string(f.Content), "from app.") || strings.Contains(string(f.Content), "import app.") {
				t.Errorf("%s still imports the default package", f.Path)
			}
		}
	})
}

func TestEmbedded_RootingInvariant(t *testing.T) {
	allCombinations(t, func(t *testing.T, spec projectspec.ProjectSpec, report *Report) {
		prefix := spec.PackageRoot() + "/"
		for _, p := range report.Created {
			underPackage := strings.HasPrefix(p, prefix)
			top, _, nested := strings.Cut(p, "/")
			allowlisted := (nested && pathmap.IsRootDir(top)) || (!nested && pathmap.IsRootFile(top))
			if underPackage == allowlisted {
				t.Errorf("%s: under package root=%v, allowlisted=%v", p, underPackage, allowlisted)
			}
		}
	})
}

func TestEmbedded_PackagingCompleteness(t *testing.T) {
	allCombinations(t, func(t *testing.T, spec projectspec.ProjectSpec, report *Report) {
		have := make(map[string]bool, len(report.Created))
		for _, p := range report.Created {
			have[p] = true
		}
		root := spec.PackageRoot()
		for _, p := range report.Created {
			if !strings.HasPrefix(p, root+"/") {
				continue
			}
			for dir := path.Dir(p); strings.HasPrefix(dir+"/", root+"/"); dir = path.Dir(dir) {
				if !have[path.Join(dir, initializer.FileName)] {
					t.Errorf("%s has no %s", dir, initializer.FileName)
				}
			}
		}
	})
}

func TestMVC_LegacyImportsRewritten(t *testing.T) {
	spec := newSpec(t, projectspec.Options{
		Name:         "shop",
		Module:       "acme_api",
		Architecture: "mvc",
		Context:      "customer",
	})

	report, err := NewMaterializer(Options{DryRun: true, Now: fixedNow}).Materialize(context.Background(), nil, spec, t.TempDir())
	testingx.AssertNoError(t, err)

	f, ok := report.File("src/acme_api/controllers/customer.py")
	if !ok {
		t.Fatalf("controller not generated, got %v", report.Created)
	}
	if !strings.Contains(string(f.Content), "from acme_api.services.customer import CustomerService") {
		t.Errorf("controller imports not rewritten:\n%s", f.Content)
	}
	router, _ := report.File("src/acme_api/api/router.py")
	if !strings.Contains(string(router.Content), "import acme_api.controllers as controllers") {
		t.Errorf("router import not rewritten:\n%s", router.Content)
	}
}

func TestReRunRefusal(t *testing.T) {
	spec := scenarioB(t)
	dest := filepath.Join(t.TempDir(), "loja")
	m := NewMaterializer(Options{Now: fixedNow})

	_, err := m.Materialize(context.Background(), nil, spec, dest)
	testingx.AssertNoError(t, err)
	testingx.WriteTree(t, dest, map[string]string{"src/acme_api/domain/customer/entities.py": "# edited by hand\n"})
	before := testingx.ReadTree(t, dest)

	_, err = m.Materialize(context.Background(), nil, spec, dest)
	testingx.AssertError(t, err, errors.CodeDestinationAlreadyExists)
	if errors.PathOf(err) != dest {
		t.Errorf("Expected destination in error, got %q", errors.PathOf(err))
	}

	if diff := cmp.Diff(before, testingx.ReadTree(t, dest)); diff != "" {
		t.Errorf("existing tree changed (-before +after):\n%s", diff)
	}
}

func TestDestinationIsFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "taken")
	testingx.AssertNoError(t, os.WriteFile(dest, []byte("x"), 0o644))

	_, err := NewMaterializer(Options{Force: true}).Materialize(context.Background(), nil, scenarioB(t), dest)
	testingx.AssertError(t, err, errors.CodeDestinationAlreadyExists)
}

func TestForce_WritesIntoNonEmpty(t *testing.T) {
	dest := testingx.WriteTree(t, t.TempDir(), map[string]string{
		"NOTES.txt": "keep me\n",
		"README.md": "old readme\n",
	})
	fsys := testingx.TemplateFS(map[string]string{
		"README.md.tmpl": "# ${project_name}\n",
		"core/x.py.tmpl": "X = 1\n",
	})

	_, err := NewMaterializer(Options{Force: true}).Materialize(context.Background(), fsys, scenarioB(t), dest)
	testingx.AssertNoError(t, err)

	tree := testingx.ReadTree(t, dest)
	if tree["NOTES.txt"] != "keep me\n" {
		t.Error("unrelated files must survive a forced run")
	}
	if tree["README.md"] != "# Loja-API\n" {
		t.Errorf("README.md = %q", tree["README.md"])
	}
}

func TestRollbackOnWriteFailure(t *testing.T) {
	parent := t.TempDir()
	dest := filepath.Join(parent, "loja")

	writes := 0
	m := NewMaterializer(Options{
		Now: fixedNow,
		WriteHook: func(rel string) error {
			writes++
			if writes == 7 {
				return fmt.Errorf("injected failure")
			}
			return nil
		},
	})

	_, err := m.Materialize(context.Background(), nil, scenarioB(t), dest)
	testingx.AssertError(t, err, errors.CodeIOWriteFailure)
	if errors.PathOf(err) == "" {
		t.Error("Expected the failing path in the error")
	}

	entries, readErr := os.ReadDir(parent)
	testingx.AssertNoError(t, readErr)
	if len(entries) != 0 {
		t.Errorf("Expected no trace of the failed run, found %d entries", len(entries))
	}
}

func TestRollbackRestoresForcedOverwrite(t *testing.T) {
	dest := testingx.WriteTree(t, t.TempDir(), map[string]string{
		"README.md": "original\n",
	})
	before := testingx.ReadTree(t, dest)
	fsys := testingx.TemplateFS(map[string]string{
		"README.md.tmpl":   "# ${project_name}\n",
		"zzz/last.py.tmpl": "x = 1\n",
	})

	m := NewMaterializer(Options{
		Force: true,
		WriteHook: func(rel string) error {
			if strings.HasSuffix(rel, "last.py") {
				return fmt.Errorf("injected failure")
			}
			return nil
		},
	})
	_, err := m.Materialize(context.Background(), fsys, scenarioB(t), dest)
	testingx.AssertError(t, err, errors.CodeIOWriteFailure)

	if diff := cmp.Diff(before, testingx.ReadTree(t, dest)); diff != "" {
		t.Errorf("tree not restored (-want +got):\n%s", diff)
	}
}

func TestCancellationRollsBack(t *testing.T) {
	parent := t.TempDir()
	dest := filepath.Join(parent, "loja")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writes := 0
	m := NewMaterializer(Options{
		WriteHook: func(string) error {
			if writes++; writes == 3 {
				cancel()
			}
			return nil
		},
	})

	_, err := m.Materialize(ctx, nil, scenarioB(t), dest)
	testingx.AssertError(t, err, errors.CodeAborted)

	entries, _ := os.ReadDir(parent)
	if len(entries) != 0 {
		t.Errorf("Expected rollback after cancellation, found %d entries", len(entries))
	}
}

func TestCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dest := filepath.Join(t.TempDir(), "loja")

	_, err := NewMaterializer(Options{}).Materialize(ctx, nil, scenarioB(t), dest)
	testingx.AssertError(t, err, errors.CodeAborted)
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("destination must not be created")
	}
}

func TestFailuresBeforeAnyWrite(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		spec  func(*projectspec.ProjectSpec)
		code  errors.Code
	}{
		{
			name:  "unknown token in content",
			files: map[string]string{"core/settings.py.tmpl": "TENANT = '${tenant}'\n"},
			code:  errors.CodeUnresolvedPlaceholder,
		},
		{
			name:  "context token in skeleton file",
			files: map[string]string{"api/router.py.tmpl": "from .routes import ${context}\n"},
			code:  errors.CodeUnresolvedPlaceholder,
		},
		{
			name:  "unknown token in path",
			files: map[string]string{"${tenant}/x.py": "x = 1\n"},
			code:  errors.CodeUnresolvedPlaceholder,
		},
		{
			name: "duplicate destination",
			files: map[string]string{
				"core/x.py.tmpl": "a = 1\n",
				"core/x.py":      "b = 2\n",
			},
			code: errors.CodeDuplicateDestination,
		},
		{
			name: "file where a directory is needed",
			files: map[string]string{
				"core/x.py.tmpl": "a = 1\n",
				"core/x.py/y.py": "b = 2\n",
			},
			code: errors.CodeDuplicateDestination,
		},
		{
			name:  "invalid spec",
			files: map[string]string{"core/x.py": "x = 1\n"},
			spec:  func(s *projectspec.ProjectSpec) { s.Contexts = nil },
			code:  errors.CodeEmptyContextList,
		},
		{
			name:  "unknown architecture",
			files: map[string]string{"core/x.py": "x = 1\n"},
			spec:  func(s *projectspec.ProjectSpec) { s.Architecture = "layered" },
			code:  errors.CodeUnknownArchitecture,
		},
		{
			name:  "empty template tree",
			files: map[string]string{},
			code:  errors.CodeTemplateRootNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := scenarioB(t)
			if tt.spec != nil {
				tt.spec(&spec)
			}
			dest := filepath.Join(t.TempDir(), "out")

			_, err := NewMaterializer(Options{}).Materialize(context.Background(), testingx.TemplateFS(tt.files), spec, dest)
			testingx.AssertError(t, err, tt.code)
			if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
				t.Error("destination must not be created on a pre-write failure")
			}
		})
	}
}

func TestExtensionInference(t *testing.T) {
	fsys := testingx.TemplateFS(map[string]string{
		"bin/runner": "from fastapi import FastAPI\n\napp = FastAPI()\n",
		"NOTES":      "Prose only, nothing to run here.\n",
	})

	report, err := NewMaterializer(Options{DryRun: true}).Materialize(context.Background(), fsys, scenarioB(t), t.TempDir())
	testingx.AssertNoError(t, err)

	for _, p := range []string{"src/acme_api/bin/runner.py", "src/acme_api/NOTES"} {
		if _, ok := report.File(p); !ok {
			t.Errorf("Expected %s, got %v", p, report.Created)
		}
	}
}

func TestBinaryPassthrough(t *testing.T) {
	blob := []byte("PNG\x00${context}\xff")
	fsys := fstest.MapFS{"static/logo.png": &fstest.MapFile{Data: blob, Mode: 0o644}}

	report, err := NewMaterializer(Options{DryRun: true}).Materialize(context.Background(), fsys, scenarioB(t), t.TempDir())
	testingx.AssertNoError(t, err)

	f, ok := report.File("src/acme_api/static/logo.png")
	if !ok {
		t.Fatalf("binary not generated, got %v", report.Created)
	}
	if string(f.Content) != string(blob) {
		t.Errorf("binary content changed: %q", f.Content)
	}
}

func TestModesAndEmptyDirectories(t *testing.T) {
	fsys := testingx.TemplateFS(map[string]string{
		"scripts/dev.sh.tmpl": "#!/bin/sh\necho ${project_name}\n",
		"scripts/README.md":   "scripts\n",
		"core/x.py":           "x = 1\n",
	})
	fsys["static"] = &fstest.MapFile{Mode: fs.ModeDir | 0o755}
	fsys["tools/run"] = &fstest.MapFile{Data: []byte("#!/bin/sh\n"), Mode: 0o755}
	dest := filepath.Join(t.TempDir(), "out")

	report, err := NewMaterializer(Options{}).Materialize(context.Background(), fsys, scenarioB(t), dest)
	testingx.AssertNoError(t, err)

	tests := []struct {
		path string
		want os.FileMode
	}{
		{"scripts/dev.sh", 0o755},
		{"scripts/README.md", 0o644},
		{"src/acme_api/core/x.py", 0o644},
		{"src/acme_api/tools/run", 0o755},
	}
	for _, tt := range tests {
		info, err := os.Stat(filepath.Join(dest, filepath.FromSlash(tt.path)))
		testingx.AssertNoError(t, err)
		if info.Mode().Perm() != tt.want {
			t.Errorf("%s mode = %o, want %o", tt.path, info.Mode().Perm(), tt.want)
		}
	}

	if diff := cmp.Diff([]string{"src/acme_api/static"}, report.Directories); diff != "" {
		t.Errorf("Directories mismatch (-want +got):\n%s", diff)
	}
	if info, err := os.Stat(filepath.Join(dest, "src", "acme_api", "static")); err != nil || !info.IsDir() {
		t.Errorf("Expected empty template directory to be created: %v", err)
	}
}

func TestDeterministicAcrossWorkerCounts(t *testing.T) {
	spec := scenarioB(t)
	var reports []*Report
	for _, workers := range []int{1, 3, 16} {
		report, err := NewMaterializer(Options{Workers: workers, DryRun: true, Now: fixedNow}).
			Materialize(context.Background(), nil, spec, t.TempDir())
		testingx.AssertNoError(t, err)
		reports = append(reports, report)
	}

	for i := 1; i < len(reports); i++ {
		if diff := cmp.Diff(reports[0].Files, reports[i].Files); diff != "" {
			t.Errorf("output differs between worker counts (-first +other):\n%s", diff)
		}
	}
}

func TestDeterministicFirstError(t *testing.T) {
	fsys := testingx.TemplateFS(map[string]string{
		"a/one.py.tmpl": "${first_bad}\n",
		"b/two.py.tmpl": "${second_bad}\n",
		"c/ok.py.tmpl":  "ok = True\n",
	})

	for _, workers := range []int{1, 8} {
		_, err := NewMaterializer(Options{Workers: workers}).Materialize(context.Background(), fsys, scenarioB(t), t.TempDir())
		testingx.AssertError(t, err, errors.CodeUnresolvedPlaceholder)
		if errors.PathOf(err) != "a/one.py.tmpl" {
			t.Errorf("workers=%d: expected first template to be reported, got %q", workers, errors.PathOf(err))
		}
	}
}

func TestDryRunTouchesNothing(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "loja")

	report, err := NewMaterializer(Options{DryRun: true}).Materialize(context.Background(), nil, scenarioB(t), dest)
	testingx.AssertNoError(t, err)
	if !report.DryRun || len(report.Created) == 0 {
		t.Errorf("Expected a populated dry-run report, got %+v", report)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("dry run must not create the destination")
	}
	if len(report.Dependencies) == 0 {
		t.Error("Expected dependencies for the installer")
	}
}

func TestLogging(t *testing.T) {
	logger := testingx.NewMockLogger(t)
	dest := filepath.Join(t.TempDir(), "loja")

	_, err := NewMaterializer(Options{Logger: logger}).Materialize(context.Background(), nil, scenarioB(t), dest)
	testingx.AssertNoError(t, err)

	logger.AssertLogged("DEBUG", "indexed templates")
	logger.AssertLogged("INFO", "materialized")
}
