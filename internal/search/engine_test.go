package search

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rcliao/support-kb/internal/embedding"
	"github.com/rcliao/support-kb/internal/model"
	"github.com/rcliao/support-kb/internal/store"
)

type fakeEmbedder struct {
	vec  embedding.Vector
	err  error
	dims int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) (embedding.Vector, error) {
	return f.vec, f.err
}

func (f *fakeEmbedder) Dims() int { return f.dims }

type fakeExpander struct {
	calls int
	exp   model.Expansion
	err   error
}

func (f *fakeExpander) Expand(ctx context.Context, query string, cls model.Classification) (model.Expansion, error) {
	f.calls++
	return f.exp, f.err
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func addArticle(t *testing.T, s *store.Store, a *model.Article) *model.Article {
	t.Helper()
	if _, err := s.CreateArticle(context.Background(), a); err != nil {
		t.Fatalf("create article: %v", err)
	}
	return a
}

func TestSearchRejectsEmptyInput(t *testing.T) {
	engine := New(newTestStore(t))
	_, err := engine.Search(context.Background(), "  ", model.Classification{})
	if !errors.Is(err, store.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestLexicalScoring(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	engine := New(s)

	addArticle(t, s, &model.Article{
		Title:   "VIN decoder errors",
		Problem: "VIN decoder rejects valid VINs",
		Tags:    []string{"vin"},
	})
	addArticle(t, s, &model.Article{Title: "Billing dispute process"})

	results, err := engine.Search(ctx, "vin decoder", model.Classification{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	// Title 10 + problem 5, plus recency 3 for a just-created article.
	if results[0].Score != 18 {
		t.Errorf("expected score 18, got %d", results[0].Score)
	}
	if results[0].Confidence != 90 {
		t.Errorf("expected confidence 90, got %d", results[0].Confidence)
	}
}

func TestClassificationBoostRanksContextMatchFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	engine := New(s)

	other := addArticle(t, s, &model.Article{Title: "inventory feed stale", Category: "Billing"})
	match := addArticle(t, s, &model.Article{Title: "inventory feed stale", Category: "Inventory"})

	results, err := engine.Search(ctx, "inventory feed", model.Classification{Category: "Inventory"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Article.ID != match.ID {
		t.Errorf("category match should rank first, got article %d", results[0].Article.ID)
	}
	if diff := results[0].Score - results[1].Score; diff != 15 {
		t.Errorf("category boost should separate by 15, got %d", diff)
	}
	_ = other
}

func TestTieBreakPrefersUsageThenLowerID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	engine := New(s)

	a := addArticle(t, s, &model.Article{Title: "printer offline"})
	b := addArticle(t, s, &model.Article{Title: "printer offline"})
	c := addArticle(t, s, &model.Article{Title: "printer offline"})

	// Usage boost caps at 5 from 10 uses on, so 10 and 20 uses score the
	// same; the raw count still decides order.
	for i := 0; i < 10; i++ {
		s.RecordUsage(ctx, a.ID, true)
	}
	for i := 0; i < 20; i++ {
		s.RecordUsage(ctx, b.ID, true)
	}

	results, err := engine.Search(ctx, "printer offline", model.Classification{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Score != results[1].Score {
		t.Fatalf("test premise broken: scores differ %d vs %d", results[0].Score, results[1].Score)
	}
	if results[0].Article.ID != b.ID {
		t.Errorf("higher usage should rank first, got article %d", results[0].Article.ID)
	}
	if results[1].Article.ID != a.ID {
		t.Errorf("expected article %d second, got %d", a.ID, results[1].Article.ID)
	}
	if results[2].Article.ID != c.ID {
		t.Errorf("expected unused article last, got %d", results[2].Article.ID)
	}
}

func TestLowSuccessRatePenalty(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	engine := New(s)

	good := addArticle(t, s, &model.Article{Title: "reset feed password"})
	bad := addArticle(t, s, &model.Article{Title: "reset feed password"})

	// Three failures: rate 0, below the 0.3 penalty line.
	for i := 0; i < 3; i++ {
		s.RecordUsage(ctx, bad.ID, false)
	}

	results, err := engine.Search(ctx, "reset feed password", model.Classification{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if results[0].Article.ID != good.ID {
		t.Errorf("penalized article should rank below the unused one")
	}
	// bad: 10 + 3 recency - 10 penalty + 1.5 usage = 4.5, rounds to 5.
	if results[1].Score != 5 {
		t.Errorf("expected penalized score 5, got %d", results[1].Score)
	}
}

func TestSemanticPathScoresBySimilarity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	near := addArticle(t, s, &model.Article{Title: "alpha"})
	far := addArticle(t, s, &model.Article{Title: "beta"})
	s.UpdateEmbedding(ctx, near.ID, []float32{1, 0})
	s.UpdateEmbedding(ctx, far.ID, []float32{0, 1})

	engine := New(s, WithEmbedder(&fakeEmbedder{vec: []float32{1, 0}, dims: 2}))

	results, err := engine.Search(ctx, "feed trouble", model.Classification{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Article.ID != near.ID {
		t.Errorf("closest vector should rank first")
	}
	// Similarity 1.0 gives base 100; recency would push past it but the
	// semantic score is clamped to 100.
	if results[0].Score != 100 || results[0].Confidence != 100 {
		t.Errorf("expected clamped 100, got score %d confidence %d", results[0].Score, results[0].Confidence)
	}
	// Orthogonal vector: base 0 plus recency 3.
	if results[1].Score != 3 {
		t.Errorf("expected score 3, got %d", results[1].Score)
	}
}

func TestEmbedderFailureFallsBackToLexical(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := addArticle(t, s, &model.Article{Title: "inventory feed stale"})
	s.UpdateEmbedding(ctx, a.ID, []float32{1, 0})

	engine := New(s, WithEmbedder(&fakeEmbedder{err: errors.New("connection refused"), dims: 2}))

	results, err := engine.Search(ctx, "inventory feed", model.Classification{})
	if err != nil {
		t.Fatalf("fallback should not surface the embedder error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 lexical result, got %d", len(results))
	}
	// Lexical confidence rule, not the semantic one: (10+3)*5 capped.
	if results[0].Confidence != 65 {
		t.Errorf("expected lexical confidence 65, got %d", results[0].Confidence)
	}
}

func TestNoStoredEmbeddingsUsesLexical(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	addArticle(t, s, &model.Article{Title: "inventory feed stale"})

	embedder := &fakeEmbedder{vec: []float32{1, 0}, dims: 2}
	engine := New(s, WithEmbedder(embedder))

	results, err := engine.Search(ctx, "inventory feed", model.Classification{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Confidence != 65 {
		t.Errorf("expected lexical path with no vectors stored: %+v", results)
	}
}

func TestEverySearchFeedsTheGapLog(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	engine := New(s)

	addArticle(t, s, &model.Article{Title: "inventory feed stale"})

	if _, err := engine.Search(ctx, "inventory feed", model.Classification{}); err != nil {
		t.Fatalf("search: %v", err)
	}
	if _, err := engine.Search(ctx, "quantum flux capacitor", model.Classification{}); err != nil {
		t.Fatalf("search: %v", err)
	}

	analytics, err := s.SearchAnalytics(ctx, 30)
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if analytics.TotalSearches != 2 || analytics.SuccessfulSearches != 1 {
		t.Errorf("expected 2 logged with 1 hit, got %+v", analytics)
	}

	failed, err := s.FailedSearches(ctx, 30)
	if err != nil {
		t.Fatalf("failed searches: %v", err)
	}
	if len(failed) != 1 || failed[0].Query != "quantum flux capacitor" {
		t.Errorf("miss not logged: %+v", failed)
	}
}

func TestExpansionWidensLexicalMatchAndIsCached(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	addArticle(t, s, &model.Article{Title: "inventory feed stale"})

	expander := &fakeExpander{exp: model.Expansion{
		ExpandedQueries: []string{"inventory feed stale"},
		Keywords:        []string{"feed"},
		Intent:          "troubleshoot",
	}}
	engine := New(s, WithExpander(expander))

	results, err := engine.Search(ctx, "listings not updating", model.Classification{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expansion should surface the article, got %d results", len(results))
	}

	// Second identical search serves the expansion from the cache.
	if _, err := engine.Search(ctx, "listings not updating", model.Classification{}); err != nil {
		t.Fatalf("search: %v", err)
	}
	if expander.calls != 1 {
		t.Errorf("expected 1 expander call, got %d", expander.calls)
	}
}

func TestExpanderFailureDegradesToRawQuery(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	addArticle(t, s, &model.Article{Title: "inventory feed stale"})

	engine := New(s, WithExpander(&fakeExpander{err: fmt.Errorf("model overloaded")}))

	results, err := engine.Search(ctx, "inventory feed", model.Classification{})
	if err != nil {
		t.Fatalf("expander failure must not fail the search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("raw query should still match, got %d results", len(results))
	}
}
