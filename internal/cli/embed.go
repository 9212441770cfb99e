package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/support-kb/internal/model"
	"github.com/rcliao/support-kb/internal/store"
)

func init() {
	embedCmd := &cobra.Command{
		Use:   "embed",
		Short: "Manage article embeddings",
	}

	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Compute embeddings for articles that lack one",
		Long: "Embed title, problem, and solution for every article without a " +
			"vector. Requires embed_provider to be openai or ollama.",
		Run: runEmbedBackfill,
	}
	backfillCmd.Flags().Bool("all", false, "Re-embed every article, not just missing ones")

	embedCmd.AddCommand(backfillCmd)
	RootCmd.AddCommand(embedCmd)
}

func runEmbedBackfill(cmd *cobra.Command, args []string) {
	all, _ := cmd.Flags().GetBool("all")

	embedder := newEmbedder()
	if embedder == nil {
		exitErr("embed backfill", fmt.Errorf("embeddings are disabled (embed_provider=off)"))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	articles, err := s.ListArticles(cmd.Context(), store.ListArticlesParams{})
	if err != nil {
		exitErr("list articles", err)
	}

	embedded, skipped, failed := 0, 0, 0
	for _, a := range articles {
		if len(a.Embedding) > 0 && !all {
			skipped++
			continue
		}
		vec, err := embedder.Embed(cmd.Context(), embeddingText(a))
		if err != nil {
			logger.Warn("embedding failed", "article_id", a.ID, "error", err)
			failed++
			continue
		}
		if err := s.UpdateEmbedding(cmd.Context(), a.ID, vec); err != nil {
			exitErr("store embedding", err)
		}
		embedded++
	}

	fmt.Printf(`{"ok":true,"embedded":%d,"skipped":%d,"failed":%d}`+"\n",
		embedded, skipped, failed)
}

func embeddingText(a *model.Article) string {
	parts := []string{a.Title, a.Problem, a.Solution}
	if len(a.Tags) > 0 {
		parts = append(parts, strings.Join(a.Tags, " "))
	}
	return strings.Join(parts, "\n")
}
