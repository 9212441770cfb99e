// Package search implements hybrid ranking over the knowledge base:
// embedding similarity when vectors exist, substring scoring otherwise,
// both adjusted by classification context and historical performance.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rcliao/support-kb/internal/embedding"
	"github.com/rcliao/support-kb/internal/model"
	"github.com/rcliao/support-kb/internal/store"
)

// Expander widens a query into variants and keywords. Implemented by
// the reasoning client; optional.
type Expander interface {
	Expand(ctx context.Context, query string, cls model.Classification) (model.Expansion, error)
}

// Engine ranks articles for a query plus classification context. Backend
// failures (embedding, expansion) degrade the ranking, they never fail
// the call; only invalid input returns an error.
type Engine struct {
	store      *store.Store
	embedder   embedding.Embedder
	expander   Expander
	logger     *slog.Logger
	maxResults int
}

// Option configures an Engine.
type Option func(*Engine)

// WithEmbedder enables the semantic path.
func WithEmbedder(e embedding.Embedder) Option {
	return func(eng *Engine) { eng.embedder = e }
}

// WithExpander enables query expansion on the lexical path.
func WithExpander(x Expander) Option {
	return func(eng *Engine) { eng.expander = x }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithMaxResults caps the semantic result set (default 10).
func WithMaxResults(n int) Option {
	return func(eng *Engine) {
		if n > 0 {
			eng.maxResults = n
		}
	}
}

// New creates a search engine over the given store.
func New(st *store.Store, opts ...Option) *Engine {
	eng := &Engine{
		store:      st,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxResults: 10,
	}
	for _, opt := range opts {
		opt(eng)
	}
	return eng
}

// Search returns articles ranked for the query and classification
// context, best first. Ties break on usage count, then lower id. Every
// call is recorded in the gap log.
func (e *Engine) Search(ctx context.Context, query string, cls model.Classification) ([]model.SearchResult, error) {
	if strings.TrimSpace(query) == "" && cls.Empty() {
		return nil, fmt.Errorf("%w: query and classification both empty", store.ErrValidation)
	}

	articles, err := e.store.ListArticles(ctx, store.ListArticlesParams{})
	if err != nil {
		return nil, err
	}

	results := e.semanticSearch(ctx, query, cls, articles)
	if results == nil {
		results = e.lexicalSearch(ctx, query, cls, articles)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Article.UsageCount != results[j].Article.UsageCount {
			return results[i].Article.UsageCount > results[j].Article.UsageCount
		}
		return results[i].Article.ID < results[j].Article.ID
	})

	e.logSearch(ctx, query, cls, results)
	return results, nil
}

// semanticSearch returns nil when the semantic path is unavailable or
// failed, signalling the caller to fall back to lexical scoring.
func (e *Engine) semanticSearch(ctx context.Context, query string, cls model.Classification, articles []*model.Article) []model.SearchResult {
	if e.embedder == nil || strings.TrimSpace(query) == "" {
		return nil
	}
	hasEmbeddings := false
	for _, a := range articles {
		if len(a.Embedding) > 0 {
			hasEmbeddings = true
			break
		}
	}
	if !hasEmbeddings {
		return nil
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.logger.Warn("semantic search unavailable, falling back to keyword search", "error", err)
		return nil
	}

	type scored struct {
		article *model.Article
		base    float64
	}
	var candidates []scored
	for _, a := range articles {
		if len(a.Embedding) == 0 {
			continue
		}
		sim := embedding.CosineSimilarity(vec, a.Embedding)
		candidates = append(candidates, scored{article: a, base: math.Round(sim * 100)})
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].base > candidates[j].base })
	if len(candidates) > e.maxResults {
		candidates = candidates[:e.maxResults]
	}

	results := make([]model.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		score := c.base + contextBoost(c.article, cls) + performanceBoost(c.article)
		final := clamp(int(math.Round(score)), 0, 100)
		results = append(results, model.SearchResult{
			Article:    c.article,
			Score:      final,
			Confidence: final,
		})
	}
	return results
}

func (e *Engine) lexicalSearch(ctx context.Context, query string, cls model.Classification, articles []*model.Article) []model.SearchResult {
	variants := e.queryVariants(ctx, query, cls)

	var results []model.SearchResult
	for _, a := range articles {
		text := 0
		for _, v := range variants {
			if s := textScore(a, v); s > text {
				text = s
			}
		}
		ctxBoost := contextBoost(a, cls)
		if text == 0 && ctxBoost == 0 {
			continue
		}
		score := float64(text) + ctxBoost + performanceBoost(a)
		final := int(math.Round(score))
		results = append(results, model.SearchResult{
			Article:    a,
			Score:      final,
			Confidence: clamp(final*5, 0, 100),
		})
	}
	return results
}

// queryVariants returns the query plus cached expansions when an
// expander is wired. Expansion failure degrades to the raw query.
func (e *Engine) queryVariants(ctx context.Context, query string, cls model.Classification) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	variants := []string{query}
	if e.expander == nil {
		return variants
	}

	clsJSON, _ := json.Marshal(cls)
	cacheInput := "expand:" + query + "|" + string(clsJSON)

	raw, err := e.store.CacheCall(ctx, cacheInput, func() (string, error) {
		exp, err := e.expander.Expand(ctx, query, cls)
		if err != nil {
			return "", err
		}
		b, err := json.Marshal(exp)
		return string(b), err
	})
	if err != nil {
		e.logger.Warn("query expansion failed", "error", err)
		return variants
	}

	var exp model.Expansion
	if err := json.Unmarshal([]byte(raw), &exp); err != nil {
		return variants
	}
	variants = append(variants, exp.ExpandedQueries...)
	variants = append(variants, exp.Keywords...)
	return variants
}

func (e *Engine) logSearch(ctx context.Context, query string, cls model.Classification, results []model.SearchResult) {
	if strings.TrimSpace(query) == "" {
		return
	}
	p := store.LogSearchParams{
		Query:          query,
		ResultsFound:   len(results) > 0,
		ResultCount:    len(results),
		Classification: cls,
	}
	if len(results) > 0 {
		id := results[0].Article.ID
		p.ArticleID = &id
	}
	if err := e.store.LogSearch(ctx, p); err != nil {
		e.logger.Warn("search log write failed", "error", err)
	}
}

// textScore is the lexical base: weighted substring hits in title,
// problem, solution, and tags.
func textScore(a *model.Article, query string) int {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return 0
	}
	score := 0
	if strings.Contains(strings.ToLower(a.Title), q) {
		score += 10
	}
	if strings.Contains(strings.ToLower(a.Problem), q) {
		score += 5
	}
	if strings.Contains(strings.ToLower(a.Solution), q) {
		score += 3
	}
	for _, tag := range a.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			score += 3
			break
		}
	}
	return score
}

func contextBoost(a *model.Article, cls model.Classification) float64 {
	boost := 0.0
	if cls.Category != "" && a.Category == cls.Category {
		boost += 15
	}
	if cls.SubCategory != "" && a.SubCategory == cls.SubCategory {
		boost += 10
	}
	if cls.Syndicator != "" && a.Syndicator == cls.Syndicator {
		boost += 10
	}
	if cls.Provider != "" && a.Provider == cls.Provider {
		boost += 10
	}
	return boost
}

// performanceBoost rewards articles that keep resolving tickets and
// stay fresh, and penalizes ones that keep failing.
func performanceBoost(a *model.Article) float64 {
	boost := 0.0

	if a.UsageCount >= 3 {
		switch {
		case a.SuccessRate >= 0.9:
			boost += 15
		case a.SuccessRate >= 0.7:
			boost += 10
		case a.SuccessRate >= 0.5:
			boost += 5
		case a.SuccessRate < 0.3:
			boost -= 10
		}
	}

	if a.UsageCount > 0 {
		boost += math.Min(float64(a.UsageCount)/2, 5)
	}

	age := time.Since(a.UpdatedAt)
	switch {
	case age <= 7*24*time.Hour:
		boost += 3
	case age <= 30*24*time.Hour:
		boost += 1
	}

	return boost
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
