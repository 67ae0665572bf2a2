package cmd

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexfuse/lexfuse/internal/output"
)

func newHybridCmd() *cobra.Command {
	var (
		topK    int
		format  string
		offline bool
	)

	cmd := &cobra.Command{
		Use:   "hybrid <query>",
		Short: "Fused semantic and keyword search",
		Long: `Run a single fused ranking across both categories.

Combines vector similarity and keyword relevance with Reciprocal Rank
Fusion; when a knowledge graph is configured, the query is expanded
with related crimes and articles.

Examples:
  lexfuse hybrid "故意伤害罪"
  lexfuse hybrid "第264条" --top 20 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runHybrid(cmd.Context(), cmd, query, topK, format, offline)
		},
	}

	cmd.Flags().IntVarP(&topK, "top", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (no embedding service)")

	return cmd
}

func runHybrid(ctx context.Context, cmd *cobra.Command, query string, topK int, format string, offline bool) error {
	slog.Info("hybrid_search_started",
		slog.String("query", query),
		slog.Int("top_k", topK))

	d, err := buildDeps(ctx, offline)
	if err != nil {
		return err
	}
	defer d.close(ctx)

	resp, err := d.coordinator.HybridSearch(ctx, query, topK)
	if err != nil {
		return err
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	out := output.New(cmd.OutOrStdout())
	if !resp.Fused {
		out.Warning("keyword index unavailable, semantic-only ranking")
	}
	if resp.Degraded {
		out.Warning("knowledge expansion incomplete, results may be partial")
	}
	for i, r := range resp.Results {
		title := r.Title
		if title == "" {
			title = r.Category
		}
		out.Result(i+1, r.ID, title, r.Similarity)
		if len(r.Sources) > 1 {
			out.Detail("paths: " + strings.Join(r.Sources, ", "))
		}
	}
	return nil
}
