package main

import (
	"github.com/spf13/cobra"
)

func checkCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the project",
		Long: `Validate tapas.json, parse the descriptors and bootstrap one page.

Unknown selectors, actions and transforms, expression syntax errors,
missing elements and malformed lists are reported with their error code.

Examples:
  tapas check
  tapas check -C ./site`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadProject(cmd, opts)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Check(cmd.Context()); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "%d descriptors bound in %s", len(app.Descriptors()), app.Config().Dir())
			return nil
		},
	}
}
