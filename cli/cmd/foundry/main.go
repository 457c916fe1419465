// Package main provides the foundry CLI entry point.
//
// Overview:
//   - Responsibility: CLI command parsing, settings loading and exit codes
//   - Key Types: Cobra command tree, settings
//   - Concurrency Model: Single command per process; the engine renders in parallel
//   - Error Semantics: Errors are printed through ui and map to exit code 1
//   - Performance Notes: Settings and templates are loaded lazily per command
//
// Usage:
//
//	foundry [command] [flags]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"go.eggybyte.com/foundry/cli/internal/ui"
	"go.eggybyte.com/foundry/configx"
	"go.eggybyte.com/foundry/core/log"
	"go.eggybyte.com/foundry/logx"
)

// envPrefix is stripped from environment variables read into settings.
const envPrefix = "FOUNDRY_"

// settings are user defaults read from the config file and FOUNDRY_*
// variables. Command-line flags take precedence over both.
type settings struct {
	TemplateRoot string `env:"TEMPLATE_ROOT"`
	Arch         string `env:"ARCH" default:"hybrid" validate:"oneof=ddd hexagonal mvc hybrid"`
	ORM          string `env:"ORM" default:"sqlalchemy" validate:"oneof=sqlalchemy peewee"`
	DB           string `env:"DB" default:"postgresql" validate:"oneof=postgresql mysql"`
	APIPrefix    string `env:"API_PREFIX" default:"/api" validate:"startswith=/"`
	Workers      int    `env:"WORKERS" default:"0" validate:"gte=0,lte=256"`
	LogLevel     string `env:"LOG_LEVEL" default:"warn" validate:"oneof=debug info warn warning error"`
	LogFormat    string `env:"LOG_FORMAT" default:"logfmt" validate:"oneof=logfmt json"`
}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	verbose        bool
	nonInteractive bool
	jsonOutput     bool
	logLevel       string
	logFormat      string
	configPath     string
}

// app carries state shared between the root command and its children.
type app struct {
	flags    globalFlags
	settings settings
	logger   log.Logger
	environ  func() []string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// run executes the command line args and returns the process exit code.
func run(ctx context.Context, args []string) int {
	root := newRootCmd(&app{environ: os.Environ})
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		ui.Error("Command failed: %v", err)
		return 1
	}
	return 0
}

// newRootCmd builds the command tree.
//
// Parameters:
//   - a: shared state; its settings and logger are filled before any subcommand runs
//
// Returns:
//   - *cobra.Command: root command with every subcommand attached
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "foundry",
		Short: "Generate FastAPI service projects from templates",
		Long: `foundry materializes a project directory from a template tree.

This tool provides commands for:
- Creating a new project for one or more bounded contexts
- Checking an existing generated tree for packaging problems
- Listing the embedded templates

Defaults can be set in $XDG_CONFIG_HOME/foundry/config.yaml or with
FOUNDRY_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ui.SetVerbose(a.flags.verbose)
			ui.SetNonInteractive(a.flags.nonInteractive)
			ui.SetJSONOutput(a.flags.jsonOutput)
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.BoolVarP(&a.flags.verbose, "verbose", "V", false, "Enable verbose output")
	pf.BoolVar(&a.flags.nonInteractive, "non-interactive", false, "Disable interactive prompts")
	pf.BoolVar(&a.flags.jsonOutput, "json", false, "Output in JSON format")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "Diagnostic log level (debug, info, warn, error)")
	pf.StringVar(&a.flags.logFormat, "log-format", "", "Diagnostic log format (logfmt, json)")
	pf.StringVar(&a.flags.configPath, "config", "", "Settings file (default $XDG_CONFIG_HOME/foundry/config.yaml)")

	root.AddCommand(newNewCmd(a), newCheckCmd(a), newTemplatesCmd(a), newVersionCmd(a))
	root.Version = versionLine()
	root.SetVersionTemplate("{{.Version}}\n")
	return root
}

// setup loads settings and builds the diagnostic logger.
func (a *app) setup(cmd *cobra.Command) error {
	sources := []configx.Source{}
	if p := a.configFile(); p != "" {
		sources = append(sources, configx.NewFileSource(p, configx.FileOptions{Optional: a.flags.configPath == ""}))
	}
	sources = append(sources, configx.NewEnvSource(configx.EnvOptions{Prefix: envPrefix, Environ: a.environ}))

	if err := configx.Load(cmd.Context(), &a.settings, sources...); err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	levelName := a.settings.LogLevel
	if a.flags.logLevel != "" {
		levelName = a.flags.logLevel
	}
	if a.flags.verbose {
		levelName = "debug"
	}
	level, err := logx.ParseLevel(levelName)
	if err != nil {
		return err
	}

	formatName := a.settings.LogFormat
	if a.flags.logFormat != "" {
		formatName = a.flags.logFormat
	}
	format, err := logx.ParseFormat(formatName)
	if err != nil {
		return err
	}

	a.logger = logx.New(
		logx.WithFormat(format),
		logx.WithLevel(level),
		logx.WithColor(!color.NoColor && format == logx.FormatLogfmt),
		logx.WithWriter(cmd.ErrOrStderr()),
	)
	a.logger.Debug("settings loaded", "arch", a.settings.Arch, "orm", a.settings.ORM, "db", a.settings.DB, "workers", a.settings.Workers)
	return nil
}

// configFile returns the settings file to read, or "" when none applies.
func (a *app) configFile() string {
	if a.flags.configPath != "" {
		return a.flags.configPath
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "foundry", "config.yaml")
}
