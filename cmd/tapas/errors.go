package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/tapas/internal/errors"
)

func errorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "errors [code]",
		Short: "List error codes or explain one",
		Long: `Without an argument, list every error code tapas can report with its
category and message. With a code, print its explanation and the page
documenting it.

Examples:
  tapas errors
  tapas errors E042`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if len(args) == 1 {
				code := strings.ToUpper(args[0])
				t, ok := errors.GetTemplate(code)
				if !ok {
					return errors.New("E146").WithDetail(args[0]).
						WithSuggestion("Run tapas errors to list the known codes")
				}
				fmt.Fprintf(w, "%s: %s (%s)\n\n", code, t.Message, t.Category)
				if t.Detail != "" {
					info(w, "%s", t.Detail)
					fmt.Fprintln(w)
				}
				info(w, "%s", t.DocURL)
				return nil
			}

			for _, code := range errors.GetAllCodes() {
				t, _ := errors.GetTemplate(code)
				fmt.Fprintf(w, "%s  %-10s  %s\n", code, t.Category, t.Message)
			}
			return nil
		},
	}
}
