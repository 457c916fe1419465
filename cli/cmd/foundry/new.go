package main

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/lithammer/dedent"
	"github.com/spf13/cobra"

	"go.eggybyte.com/foundry/cli/internal/generators"
	"go.eggybyte.com/foundry/cli/internal/projectfs"
	"go.eggybyte.com/foundry/cli/internal/projectspec"
	"go.eggybyte.com/foundry/cli/internal/specfile"
	"go.eggybyte.com/foundry/cli/internal/templates"
	"go.eggybyte.com/foundry/cli/internal/ui"
)

// newFlags holds the flags of the new command.
type newFlags struct {
	module    string
	context   string
	contexts  []string
	arch      string
	orm       string
	db        string
	apiPrefix string
	venv      bool
	noDocker  bool
	templates string
	output    string
	force     bool
	dryRun    bool
	tree      bool
	specFile  string
	workers   int
}

func newNewCmd(a *app) *cobra.Command {
	f := &newFlags{}
	cmd := &cobra.Command{
		Use:   "new [name]",
		Short: "Create a new project",
		Long: strings.TrimSpace(dedent.Dedent(`
			Create a new FastAPI service project.

			The project is written to <output>/<name>. Every file of the template
			tree is rendered for the chosen architecture, ORM and database; files
			under a ${context} directory are rendered once per bounded context.
			Nothing is left behind when generation fails.

			Examples:
			  foundry new Loja-API --contexts customer,order
			  foundry new shop --arch mvc --orm peewee --db mysql --no-docker
			  foundry new --spec-file project.yaml --dry-run --tree`)),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNew(cmd, a, f, args)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.module, "module", "", "Python package name (default: normalized project name)")
	fl.StringVar(&f.context, "context", "", "Single bounded context (default \""+projectspec.DefaultContext+"\")")
	fl.StringSliceVar(&f.contexts, "contexts", nil, "Comma-separated bounded contexts")
	fl.StringVar(&f.arch, "arch", "", "Architecture: hybrid, ddd, hexagonal or mvc")
	fl.StringVar(&f.orm, "orm", "", "ORM: sqlalchemy or peewee")
	fl.StringVar(&f.db, "db", "", "Database: postgresql or mysql")
	fl.StringVar(&f.apiPrefix, "api-prefix", "", "Route prefix of the generated API")
	fl.BoolVar(&f.venv, "venv", false, "Plan a virtual environment in the next steps")
	fl.BoolVar(&f.noDocker, "no-docker", false, "Skip Dockerfile and compose files")
	fl.StringVar(&f.templates, "templates", "", "Template root directory (default: embedded templates)")
	fl.StringVarP(&f.output, "output", "o", ".", "Parent directory of the new project")
	fl.BoolVarP(&f.force, "force", "f", false, "Write into a non-empty destination")
	fl.BoolVar(&f.dryRun, "dry-run", false, "Render everything but write nothing")
	fl.BoolVar(&f.tree, "tree", false, "Print the generated tree")
	fl.StringVar(&f.specFile, "spec-file", "", "YAML project file; flags override its values")
	fl.IntVar(&f.workers, "workers", 0, "Parallel render workers (default: number of CPUs)")
	return cmd
}

// runNew executes the new command.
//
// Parameters:
//   - cmd: Cobra command, used for its context and changed flags
//   - a: shared settings and logger
//   - f: parsed flags
//   - args: optional project name
//
// Returns:
//   - error: validation, template or write failure
func runNew(cmd *cobra.Command, a *app, f *newFlags, args []string) error {
	opts, err := f.options(cmd, a.settings, args)
	if err != nil {
		return err
	}
	spec, err := projectspec.New(opts)
	if err != nil {
		return err
	}

	fsys, err := f.templateFS(a.settings)
	if err != nil {
		return err
	}

	destination := filepath.Join(f.output, spec.Name)
	force := f.force
	if !force && !f.dryRun {
		state, err := projectfs.Inspect(destination)
		if err != nil {
			return err
		}
		if state == projectfs.StateNonEmptyDir && ui.Confirm(false, "Directory %s is not empty. Write into it anyway?", destination) {
			force = true
		}
	}

	workers := f.workers
	if !cmd.Flags().Changed("workers") {
		workers = a.settings.Workers
	}

	ui.Info("Creating %s project %s (module %s, contexts %s)",
		spec.Architecture, spec.Name, spec.ModuleName, strings.Join(spec.ContextNames(), ", "))

	m := generators.NewMaterializer(generators.Options{
		Logger:  a.logger,
		Workers: workers,
		Force:   force,
		DryRun:  f.dryRun,
	})
	report, err := m.Materialize(cmd.Context(), fsys, spec, destination)
	if err != nil {
		return err
	}

	if (f.tree || f.dryRun) && !ui.IsJSON() {
		if err := ui.Tree(spec.Name, report.Created); err != nil {
			return err
		}
	}

	verb := "Created"
	if report.DryRun {
		verb = "Would create"
	}
	ui.Result(report, "%s %s: %d files (%d skeleton, %d per context, %d package initializers)",
		verb, destination, len(report.Created), report.Skeleton, perContextTotal(report), len(report.Initializers))

	if !report.DryRun && !ui.IsJSON() {
		printNextSteps(spec, destination)
	}
	return nil
}

// options merges the project file, user settings and flags. Explicit flags win
// over the project file, which wins over settings.
func (f *newFlags) options(cmd *cobra.Command, s settings, args []string) (projectspec.Options, error) {
	opts := projectspec.Options{Docker: true}
	if f.specFile != "" {
		file, diags := specfile.Load(f.specFile)
		for _, d := range diags.Items() {
			switch d.Severity {
			case specfile.SeverityWarning:
				ui.Warning("%s: %s", f.specFile, d.Message)
			case specfile.SeverityInfo:
				ui.Debug("%s: %s", f.specFile, d.Message)
			}
		}
		if diags.HasErrors() {
			return projectspec.Options{}, diags.Err()
		}
		opts = file.Options()
	}

	if opts.Architecture == "" {
		opts.Architecture = s.Arch
	}
	if opts.ORM == "" {
		opts.ORM = s.ORM
	}
	if opts.DB == "" {
		opts.DB = s.DB
	}
	if opts.APIPrefix == "" {
		opts.APIPrefix = s.APIPrefix
	}

	changed := cmd.Flags().Changed
	if len(args) == 1 {
		opts.Name = args[0]
	}
	if opts.Name == "" {
		opts.Name = projectspec.DefaultProjectName
	}
	if changed("module") {
		opts.Module = f.module
	}
	if changed("arch") {
		opts.Architecture = f.arch
	}
	if changed("orm") {
		opts.ORM = f.orm
	}
	if changed("db") {
		opts.DB = f.db
	}
	if changed("api-prefix") {
		opts.APIPrefix = f.apiPrefix
	}
	if changed("venv") {
		opts.Venv = f.venv
	}
	if changed("no-docker") {
		opts.Docker = !f.noDocker
	}

	// Context flags replace whatever the project file chose; both flags together
	// are left for projectspec.New to reject.
	if changed("context") || changed("contexts") {
		opts.Context, opts.Contexts = f.context, f.contexts
	}
	if opts.Context == "" && len(opts.Contexts) == 0 {
		opts.Context = projectspec.DefaultContext
	}
	return opts, nil
}

// templateFS returns the template tree selected by --templates or settings;
// nil selects the embedded tree.
func (f *newFlags) templateFS(s settings) (fs.FS, error) {
	root := f.templates
	if root == "" {
		root = s.TemplateRoot
	}
	if root == "" {
		return nil, nil
	}
	return templates.OpenDir(root)
}

func perContextTotal(r *generators.Report) int {
	n := 0
	for _, c := range r.PerContext {
		n += c
	}
	return n
}

func printNextSteps(spec projectspec.ProjectSpec, destination string) {
	steps := []string{"cd " + destination}
	if spec.Venv {
		steps = append(steps, "python -m venv .venv && . .venv/bin/activate")
	}
	steps = append(steps, "pip install "+strings.Join(quoteAll(projectspec.Dependencies(spec)), " "))
	if spec.Docker {
		steps = append(steps, "docker compose up -d db")
	}
	steps = append(steps, "./scripts/dev.sh")

	ui.Info("")
	ui.Info("Next steps:")
	for i, s := range steps {
		ui.Step(i+1, len(steps), "%s", s)
	}
}

// quoteAll quotes requirements that a shell would otherwise glob.
func quoteAll(reqs []string) []string {
	out := make([]string, len(reqs))
	for i, r := range reqs {
		if strings.ContainsAny(r, "[]") {
			r = fmt.Sprintf("%q", r)
		}
		out[i] = r
	}
	return out
}
