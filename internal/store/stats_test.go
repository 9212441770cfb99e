package store

import (
	"context"
	"testing"

	"github.com/rcliao/support-kb/internal/model"
)

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := createTestArticle(t, s, "first")
	b := &model.Article{Title: "second", Category: "Billing"}
	if _, err := s.CreateArticle(ctx, b); err != nil {
		t.Fatalf("create: %v", err)
	}
	s.UpdateEmbedding(ctx, a.ID, []float32{0.5, 0.5})
	s.RecordUsage(ctx, a.ID, true)
	s.LogAction(ctx, model.AuditCreate, &a.ID, "maria", nil, nil)

	stats, err := s.Stats(ctx, "")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalArticles != 2 {
		t.Errorf("expected 2 articles, got %d", stats.TotalArticles)
	}
	if stats.TotalUsage != 1 {
		t.Errorf("expected usage 1, got %d", stats.TotalUsage)
	}
	if stats.WithEmbeddings != 1 {
		t.Errorf("expected 1 embedded, got %d", stats.WithEmbeddings)
	}
	if stats.TotalAuditEvents != 1 {
		t.Errorf("expected 1 audit event, got %d", stats.TotalAuditEvents)
	}
	if stats.ByCategory["Inventory"] != 1 || stats.ByCategory["Billing"] != 1 {
		t.Errorf("category rollup wrong: %v", stats.ByCategory)
	}
	if stats.BySubCategory["Unknown"] != 2 {
		t.Errorf("empty sub-categories should fold into Unknown: %v", stats.BySubCategory)
	}
}
