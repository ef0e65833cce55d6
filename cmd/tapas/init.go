package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vango-dev/tapas/internal/config"
	"github.com/vango-dev/tapas/internal/errors"
	"github.com/vango-dev/tapas/internal/templates"
)

func initCmd() *cobra.Command {
	var (
		template    string
		description string
		port        int
	)

	cmd := &cobra.Command{
		Use:   "init <dir>",
		Short: "Create a new tapas project",
		Long: `Create a new tapas project in a new directory.

Templates:
  counter   A button and a click counter
  films     A searchable film list loaded from an HTTP API (default)

Examples:
  tapas init my-page
  tapas init my-page --template=counter --port=8080`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, args[0], template, description, port)
		},
	}

	cmd.Flags().StringVarP(&template, "template", "t", "films", "Project template (counter, films)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Project description")
	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultPort, "Live server port")

	return cmd
}

func runInit(cmd *cobra.Command, name, templateName, description string, port int) error {
	w := cmd.OutOrStdout()

	if !isValidProjectName(filepath.Base(filepath.Clean(name))) {
		return errors.New("E122").
			WithDetail("Project directory must end in a valid name").
			WithSuggestion("Use letters, numbers, and hyphens")
	}

	projectDir, err := filepath.Abs(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(projectDir); !os.IsNotExist(err) {
		return errors.New("E143").
			WithDetail("Directory '" + name + "' already exists").
			WithSuggestion("Choose a different name or remove the existing directory")
	}

	tmpl, err := templates.Get(templateName)
	if err != nil {
		return err
	}
	if description == "" {
		description = tmpl.Description
	}

	printBanner(w)
	info(w, "Creating project from '%s' template...", templateName)
	if err := os.MkdirAll(projectDir, 0755); err != nil {
		return err
	}
	cfg := templates.Config{
		ProjectName: filepath.Base(projectDir),
		Description: description,
		Port:        port,
	}
	if err := tmpl.Create(projectDir, cfg); err != nil {
		os.RemoveAll(projectDir)
		return err
	}

	fmt.Fprintln(w)
	success(w, "Created %s/", name)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  To get started:")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "    cd %s\n", name)
	fmt.Fprintln(w, "    tapas serve")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Your page will be live at http://localhost:%d\n", port)
	fmt.Fprintln(w)
	return nil
}

func isValidProjectName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	for _, r := range name {
		if r == ' ' || r == '/' || r == '\\' {
			return false
		}
	}
	return true
}
