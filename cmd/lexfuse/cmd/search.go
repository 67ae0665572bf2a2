package cmd

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexfuse/lexfuse/internal/output"
	"github.com/lexfuse/lexfuse/internal/search"
)

// searchOptions holds CLI flags for mixed search.
type searchOptions struct {
	articles int
	cases    int
	content  bool
	format   string // "text", "json"
	offline  bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search law articles and cases",
		Long: `Search law articles and cases with a fixed per-category split.

Each category is retrieved and ranked independently, then filtered for
usable content.

Examples:
  lexfuse search "故意伤害"
  lexfuse search "盗窃罪的量刑标准" --articles 3 --cases 10
  lexfuse search "交通肇事" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.articles, "articles", "a", 5, "Number of law articles to return")
	cmd.Flags().IntVarP(&opts.cases, "cases", "k", 5, "Number of cases to return")
	cmd.Flags().BoolVar(&opts.content, "content", true, "Include full document content")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use static embeddings (no embedding service)")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	slog.Info("search_started",
		slog.String("query", query),
		slog.Int("articles", opts.articles),
		slog.Int("cases", opts.cases))

	d, err := buildDeps(ctx, opts.offline)
	if err != nil {
		return err
	}
	defer d.close(ctx)

	resp, err := d.coordinator.MixedSearch(ctx, query, opts.articles, opts.cases, opts.content)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	printMixed(output.New(cmd.OutOrStdout()), resp, opts.content)
	return nil
}

func printMixed(out *output.Writer, resp *search.MixedResponse, withContent bool) {
	out.Heading("法条")
	if len(resp.Articles) == 0 {
		out.Detail("no matching articles")
	}
	for i, a := range resp.Articles {
		out.Result(i+1, a.ID, a.Title, a.Similarity)
		if withContent && a.Content != "" {
			out.Code(a.Content)
		}
	}

	out.Newline()
	out.Heading("案例")
	if len(resp.Cases) == 0 {
		out.Detail("no matching cases")
	}
	for i, c := range resp.Cases {
		out.Result(i+1, c.ID, c.Title, c.Similarity)
		if c.Imprisonment != "" {
			out.Detail("刑期: " + c.Imprisonment)
		}
		if withContent && c.Content != "" {
			out.Code(c.Content)
		}
	}
}
