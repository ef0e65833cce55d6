package main

import (
	"fmt"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/tapas/internal/errors"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var (
		port        int
		host        string
		openBrowser bool
		watch       bool
		interval    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the page live",
		Long: `Serve the page with a live connection per browser tab.

Every visit gets its own document, store and bindings. Browser events
travel over a WebSocket and come back as DOM patches.

Endpoints:
  /          the bound page
  /ws        live session transport
  /metrics   Prometheus metrics
  /healthz   liveness probe

With --watch, changes to tapas.json, the page, the descriptors or the
state file reload the project and every open tab. Stylesheet changes in
the static directory refresh the stylesheets only.

Examples:
  tapas serve
  tapas serve --watch
  tapas serve --port=8080
  tapas serve --host=0.0.0.0 --log-format=json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadProject(cmd, opts)
			if err != nil {
				return err
			}
			defer app.Close()

			cfg := app.Config()
			if port > 0 {
				cfg.Server.Port = port
			}
			if host != "" {
				cfg.Server.Host = host
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			w := cmd.OutOrStdout()
			printBanner(w)
			url := fmt.Sprintf("http://%s", cfg.Address())
			success(w, "Serving %s at %s", cfg.Name, url)
			fmt.Fprintln(w)

			if openBrowser {
				openURL(url)
			}
			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := app.Run(ctx); err != nil {
					if errors.Is(err, syscall.EADDRINUSE) {
						return errors.New("E142").WithDetail(cfg.Address()).Wrap(err)
					}
					return err
				}
				// Stop the watcher once the server is down.
				stop()
				return nil
			})
			if watch {
				info(w, "Watching %s for changes", cfg.Dir())
				g.Go(func() error {
					return app.Watch(ctx, interval)
				})
			}
			return g.Wait()
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to run on (default from tapas.json)")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Host to bind to (default from tapas.json)")
	cmd.Flags().BoolVarP(&openBrowser, "open", "o", false, "Open browser on start")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Reload on project and asset changes")
	cmd.Flags().DurationVar(&interval, "interval", 250*time.Millisecond, "Polling interval for --watch")

	return cmd
}

// openURL opens a URL in the default browser.
func openURL(url string) {
	var cmd *exec.Cmd

	switch {
	case commandExists("xdg-open"):
		cmd = exec.Command("xdg-open", url)
	case commandExists("open"):
		cmd = exec.Command("open", url)
	case commandExists("start"):
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}

	cmd.Start()
}

// commandExists checks if a command exists in PATH.
func commandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
