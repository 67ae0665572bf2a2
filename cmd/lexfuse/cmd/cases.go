package cmd

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexfuse/lexfuse/internal/output"
)

func newCasesCmd() *cobra.Command {
	var (
		offset  int
		limit   int
		format  string
		offline bool
	)

	cmd := &cobra.Command{
		Use:   "cases <query>",
		Short: "Page through ranked cases for a query",
		Long: `Page through the case ranking for a query.

Uses the same ranking pipeline as the mixed search case path, sliced by
offset and limit.

Examples:
  lexfuse cases "盗窃" --limit 10
  lexfuse cases "盗窃" --offset 10 --limit 10`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runCases(cmd.Context(), cmd, query, offset, limit, format, offline)
		},
	}

	cmd.Flags().IntVar(&offset, "offset", 0, "Number of ranked cases to skip")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of cases to return")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (no embedding service)")

	return cmd
}

func runCases(ctx context.Context, cmd *cobra.Command, query string, offset, limit int, format string, offline bool) error {
	slog.Info("cases_page_started",
		slog.String("query", query),
		slog.Int("offset", offset),
		slog.Int("limit", limit))

	d, err := buildDeps(ctx, offline)
	if err != nil {
		return err
	}
	defer d.close(ctx)

	page, err := d.coordinator.LoadMoreCases(ctx, query, offset, limit)
	if err != nil {
		return err
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	}

	out := output.New(cmd.OutOrStdout())
	if len(page.Cases) == 0 {
		out.Detail("no cases in this range")
	}
	for i, c := range page.Cases {
		out.Result(offset+i+1, c.ID, c.Title, c.Similarity)
		if c.Imprisonment != "" {
			out.Detail("刑期: " + c.Imprisonment)
		}
	}
	if page.HasMore {
		out.Newline()
		out.Statusf("→", "more cases available, rerun with --offset %d", offset+limit)
	}
	return nil
}
