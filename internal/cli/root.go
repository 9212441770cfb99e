// Package cli implements the supportkb CLI commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/support-kb/internal/config"
	"github.com/rcliao/support-kb/internal/embedding"
	"github.com/rcliao/support-kb/internal/log"
	"github.com/rcliao/support-kb/internal/reasoning"
	"github.com/rcliao/support-kb/internal/search"
	"github.com/rcliao/support-kb/internal/store"
	"github.com/rcliao/support-kb/internal/workflow"
)

var (
	dbFlag   string
	userFlag string

	cfg    *config.Config
	logger log.Logger
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "supportkb",
	Short: "Help-desk knowledge base engine",
	Long: "Versioned knowledge base for help-desk teams: hybrid search, " +
		"agent feedback review, gap analysis, and a full audit trail. " +
		"SQLite-backed, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbFlag, "db", "d", "", "Database path (default: $SUPPORT_KB_DB_PATH or ~/.support-kb/kb.db)")
	RootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "User recorded in the audit log (default: $USER)")
}

// loadConfig resolves configuration once per invocation. Flags override
// file and environment.
func loadConfig() *config.Config {
	if cfg != nil {
		return cfg
	}
	c, err := config.Load()
	if err != nil {
		exitErr("load config", err)
	}
	if dbFlag != "" {
		c.DBPath = dbFlag
	}
	if userFlag != "" {
		c.User = userFlag
	}
	cfg = c
	logger = log.New(log.Config{JSON: c.LogJSON})
	return cfg
}

func openStore() (*store.Store, error) {
	c := loadConfig()
	return store.New(c.DBPath,
		store.WithCacheTTL(time.Duration(c.CacheTTLHours)*time.Hour),
		store.WithSearchLogCap(c.SearchLogCap))
}

// newEmbedder returns nil when embeddings are disabled.
func newEmbedder() embedding.Embedder {
	c := loadConfig()
	switch c.EmbedProvider {
	case config.ProviderOpenAI:
		return embedding.NewOpenAIEmbedder(c.OpenAIBaseURL, c.OpenAIAPIKey, c.EmbedModel, c.EmbedDims)
	case config.ProviderOllama:
		return embedding.NewOllamaEmbedder(c.OllamaHost, c.OllamaModel)
	default:
		return nil
	}
}

// newReasoner returns nil when no API key is configured.
func newReasoner() *reasoning.Client {
	c := loadConfig()
	if !c.ReasoningEnabled() {
		return nil
	}
	return reasoning.New(c.OpenAIBaseURL, c.OpenAIAPIKey, c.ChatModel)
}

func newEngine(s *store.Store, expand bool) *search.Engine {
	c := loadConfig()
	opts := []search.Option{
		search.WithLogger(logger.With("component", "search")),
		search.WithMaxResults(c.SearchMaxResults),
	}
	if e := newEmbedder(); e != nil {
		opts = append(opts, search.WithEmbedder(e))
	}
	if expand {
		if r := newReasoner(); r != nil {
			opts = append(opts, search.WithExpander(r))
		}
	}
	return search.New(s, opts...)
}

func newWorkflow(s *store.Store) *workflow.Workflow {
	opts := []workflow.Option{
		workflow.WithLogger(logger.With("component", "workflow")),
		workflow.WithSearcher(newEngine(s, false)),
	}
	if r := newReasoner(); r != nil {
		opts = append(opts, workflow.WithRecommender(r))
	}
	return workflow.New(s, opts...)
}

// audit records a CLI mutation. Best effort: a failed audit write warns
// instead of undoing work already committed.
func audit(ctx context.Context, s *store.Store, action string, articleID *int, details map[string]string) {
	if _, err := s.LogAction(ctx, action, articleID, loadConfig().User, details, nil); err != nil {
		logger.Warn("audit write failed", "action", action, "error", err)
	}
}

func printJSON(v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
