package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"go.eggybyte.com/foundry/cli/internal/lint"
	"go.eggybyte.com/foundry/cli/internal/projectfs"
	"go.eggybyte.com/foundry/cli/internal/projectspec"
	"go.eggybyte.com/foundry/cli/internal/ui"
	"go.eggybyte.com/foundry/core/errors"
)

func newCheckCmd(a *app) *cobra.Command {
	var module string
	cmd := &cobra.Command{
		Use:   "check [dir]",
		Short: "Check a generated project for packaging problems",
		Long: `Check a generated project tree.

This command verifies:
- The package root src/<module> exists
- Python sources live under the package root
- Every package directory has an __init__.py
- No placeholder tokens or default-package imports were left behind

When --module is omitted it is inferred from the single package under src/.

Example:
  foundry check ./loja-api --module loja_api`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runCheck(a, dir, module)
		},
	}
	cmd.Flags().StringVar(&module, "module", "", "Package name under src/")
	return cmd
}

// runCheck executes the check command.
//
// Parameters:
//   - a: shared logger
//   - dir: project directory
//   - module: package name, inferred when empty
//
// Returns:
//   - error: lint failure or error-level findings
func runCheck(a *app, dir, module string) error {
	if module == "" {
		inferred, err := inferModule(dir)
		if err != nil {
			return err
		}
		module = inferred
	}
	ui.Info("Checking %s (module %s)...", dir, module)

	linter := lint.NewLinter(lint.WithLogger(a.logger))
	results, err := linter.Check(projectfs.New(dir, projectfs.WithLogger(a.logger)), module)
	if err != nil {
		return fmt.Errorf("failed to run linting: %w", err)
	}

	if ui.IsJSON() {
		ui.Result(results, "Checked %d files", results.Files)
	} else {
		displayLintResults(results)
	}

	if !results.OK() {
		return fmt.Errorf("project check failed with %d errors", results.ErrorCount)
	}
	if results.WarningCount > 0 || results.InfoCount > 0 {
		ui.Warning("Project check completed with %d warnings and %d info messages",
			results.WarningCount, results.InfoCount)
	} else if !ui.IsJSON() {
		ui.Success("Project check passed! No issues found in %d files.", results.Files)
	}
	return nil
}

// inferModule returns the only valid package directory under dir/src.
func inferModule(dir string) (string, error) {
	entries, err := os.ReadDir(filepath.Join(dir, "src"))
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read %s: %w", filepath.Join(dir, "src"), err)
	}

	var candidates []string
	for _, e := range entries {
		if e.IsDir() && projectspec.ValidIdentifier(e.Name()) {
			candidates = append(candidates, e.Name())
		}
	}
	sort.Strings(candidates)
	if len(candidates) != 1 {
		return "", errors.Build(errors.CodeInvalidModuleName).
			WithOp("check").
			WithPath(dir).
			WithMsgf("cannot infer the module from src/ (found %d candidates %v); pass --module", len(candidates), candidates).
			Err()
	}
	return candidates[0], nil
}

// displayLintResults prints findings grouped by level.
func displayLintResults(results *lint.LintResults) {
	groups := []struct {
		level  string
		header func(string, ...any)
		title  string
	}{
		{lint.LevelError, ui.Error, "Errors found:"},
		{lint.LevelWarning, ui.Warning, "Warnings found:"},
		{lint.LevelInfo, ui.Info, "Info messages:"},
	}

	for _, g := range groups {
		var items []lint.LintResult
		for _, r := range results.Results {
			if r.Level == g.level {
				items = append(items, r)
			}
		}
		if len(items) == 0 {
			continue
		}
		ui.Info("")
		g.header(g.title)
		for _, r := range items {
			ui.Info("  [%s] %s: %s", r.Rule, r.Path, r.Message)
			if r.Suggestion != "" {
				ui.Info("    Suggestion: %s", r.Suggestion)
			}
		}
	}
}
