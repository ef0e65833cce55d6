package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/tapas"
	"github.com/vango-dev/tapas/internal/config"
	"github.com/vango-dev/tapas/internal/errors"
)

// Version information set at build time.
var (
	version = tapas.Version
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╔╦╗┌─┐┌─┐┌─┐┌─┐
   ║ ├─┤├─┘├─┤└─┐
   ╩ ┴ ┴┴  ┴ ┴└─┘
`

// rootOptions are the flags shared by every command.
type rootOptions struct {
	dir       string
	logLevel  string
	logFormat string
	noColor   bool
}

func main() {
	os.Exit(execute(newRootCmd(), os.Stderr))
}

// execute runs cmd and reports a failure on w: one JSON object with
// --log-format=json, the formatted error otherwise. It returns the exit
// code.
func execute(cmd *cobra.Command, w io.Writer) int {
	err := cmd.Execute()
	if err == nil {
		return 0
	}
	if format, _ := cmd.PersistentFlags().GetString("log-format"); format == "json" {
		errors.FprintJSON(w, err)
	} else {
		errors.Fprint(w, err)
	}
	return 1
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "tapas",
		Short: "Declarative data binding for HTML pages",
		Long: `tapas binds an HTML page to a reducer store through declarative
descriptors, then renders it or serves it live.

A project is a directory with tapas.json, the page and its descriptor
file. Every element carrying data-tapas-id can declare selectors, text,
html, attribute and class bindings, event handlers and keyed lists.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				errors.SetColor(false)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.dir, "dir", "C", ".", "Project directory (searched upwards for tapas.json)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (default from tapas.json)")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: text or json (default from tapas.json)")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored error output")

	rootCmd.AddCommand(
		initCmd(),
		checkCmd(opts),
		renderCmd(opts),
		serveCmd(opts),
		errorsCmd(),
		versionCmd(),
	)
	return rootCmd
}

// loadProject finds tapas.json, applies the logging flags and creates the
// App.
func loadProject(cmd *cobra.Command, opts *rootOptions, extra ...tapas.Option) (*tapas.App, error) {
	root, err := config.FindProjectRoot(opts.dir)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	return tapas.New(cfg, append([]tapas.Option{tapas.WithLogger(logger)}, extra...)...)
}

// newLogger builds the slog logger described by c.
func newLogger(w io.Writer, c config.LogConfig) (*slog.Logger, error) {
	level, err := config.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch c.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, errors.New("E122").
		WithDetailf("log format must be text or json, got %q", c.Format)
}

// printBanner prints the tapas ASCII art banner.
func printBanner(w io.Writer) {
	fmt.Fprint(w, banner)
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}
