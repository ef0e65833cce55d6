package main

import (
	"bytes"
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/tapas/internal/publish"
)

func renderCmd(opts *rootOptions) *cobra.Command {
	var (
		output  string
		timeout time.Duration
		assets  bool
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the bound page to HTML",
		Long: `Bootstrap the page, wait for the requests started by init hooks to
settle, and write the resulting HTML.

The output may be a file or an s3://bucket/key URL. S3 uploads use the
"publish" section of tapas.json and credentials from AWS_ACCESS_KEY_ID
and AWS_SECRET_ACCESS_KEY. With --assets the static directory is
published next to the page under the static prefix.

Examples:
  tapas render
  tapas render -o dist/index.html --timeout=5s
  tapas render -o s3://my-site/index.html --assets`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadProject(cmd, opts)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var b bytes.Buffer
			if err := app.Render(ctx, &b); err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err := cmd.OutOrStdout().Write(b.Bytes())
				return err
			}

			cfg := app.Config()
			// The timeout bounds settling only.
			pubCtx := cmd.Context()
			dest, key, err := publish.Open(pubCtx, output, cfg.Publish)
			if err != nil {
				return err
			}
			if err := dest.Put(pubCtx, key, "text/html; charset=utf-8", b.Bytes()); err != nil {
				return err
			}
			if assets && cfg.StaticDir() != "" {
				n, err := publish.PutDir(pubCtx, dest, cfg.StaticDir(), publish.AssetPrefix(key, cfg.Static.Prefix))
				if err != nil {
					return err
				}
				info(cmd.ErrOrStderr(), "Published %d assets", n)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file or s3://bucket/key (default stdout)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to wait for pending requests")
	cmd.Flags().BoolVar(&assets, "assets", false, "Also publish the static directory")

	return cmd
}
