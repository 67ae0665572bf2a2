package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lexfuse/lexfuse/internal/output"
	"github.com/lexfuse/lexfuse/internal/store"
)

// ingestRecord is one corpus document as it appears in the input file.
type ingestRecord struct {
	store.DocumentMeta
	Content string `json:"content"`
}

func newIndexCmd() *cobra.Command {
	var (
		articlesPath string
		casesPath    string
		offline      bool
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Ingest article and case corpora",
		Long: `Ingest law article and case corpora into the local store.

Reads JSON arrays of documents, embeds their text, and builds both the
vector store and the keyword index.

Examples:
  lexfuse index --articles articles.json --cases cases.json
  lexfuse index --cases cases.json --offline`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if articlesPath == "" && casesPath == "" {
				return fmt.Errorf("nothing to ingest, pass --articles and/or --cases")
			}
			return runIndex(cmd.Context(), cmd, articlesPath, casesPath, offline)
		},
	}

	cmd.Flags().StringVar(&articlesPath, "articles", "", "Path to the law-article corpus (JSON array)")
	cmd.Flags().StringVar(&casesPath, "cases", "", "Path to the case corpus (JSON array)")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (no embedding service)")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, articlesPath, casesPath string, offline bool) error {
	d, err := buildDeps(ctx, offline)
	if err != nil {
		return err
	}
	defer d.close(ctx)

	out := output.New(cmd.OutOrStdout())

	if articlesPath != "" {
		n, err := ingestFile(ctx, d, store.CategoryArticle, articlesPath)
		if err != nil {
			return err
		}
		out.Successf("indexed %d articles", n)
	}
	if casesPath != "" {
		n, err := ingestFile(ctx, d, store.CategoryCase, casesPath)
		if err != nil {
			return err
		}
		out.Successf("indexed %d cases", n)
	}
	return nil
}

func ingestFile(ctx context.Context, d *deps, category store.Category, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	var records []ingestRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	slog.Info("ingest_started",
		slog.String("category", string(category)),
		slog.Int("documents", len(records)))

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = embedText(r)
	}
	vectors, err := d.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}

	docs := make([]store.Document, len(records))
	indexDocs := make([]store.IndexDoc, len(records))
	for i, r := range records {
		docs[i] = store.Document{Meta: r.DocumentMeta, Content: r.Content, Vector: vectors[i]}
		indexDocs[i] = store.IndexDoc{ID: r.ID, Title: r.Title, Content: r.Content}
	}

	if err := d.store.PutDocuments(ctx, category, docs); err != nil {
		return 0, err
	}
	if d.keyword != nil {
		if err := d.keyword.Index(ctx, category, indexDocs); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

// embedText builds the text embedded for a document: title plus body,
// so short titles still carry signal.
func embedText(r ingestRecord) string {
	if r.Title == "" {
		return r.Content
	}
	return r.Title + " " + r.Content
}
