package main

import (
	"github.com/spf13/cobra"

	"go.eggybyte.com/foundry/cli/internal/templates"
	"go.eggybyte.com/foundry/cli/internal/ui"
)

func newTemplatesCmd(a *app) *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List the template tree",
		Long: `List every file of the template tree, embedded by default.

Example:
  foundry templates
  foundry templates --templates ./my-templates`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if root == "" {
				root = a.settings.TemplateRoot
			}
			fsys := templates.Default()
			label := "embedded"
			if root != "" {
				var err error
				if fsys, err = templates.OpenDir(root); err != nil {
					return err
				}
				label = root
			}

			files, err := templates.NewLoader(fsys).List()
			if err != nil {
				return err
			}
			if ui.IsJSON() {
				ui.Result(files, "%d template files", len(files))
				return nil
			}
			return ui.Tree(label, files)
		},
	}
	cmd.Flags().StringVar(&root, "templates", "", "Template root directory")
	return cmd
}
