package store

import (
	"context"
	"testing"

	"github.com/rcliao/support-kb/internal/model"
)

func TestLogActionMonotonicIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	article := 3
	var last int
	for i := 0; i < 4; i++ {
		id, err := s.LogAction(ctx, model.AuditUpdate, &article, "maria", nil, nil)
		if err != nil {
			t.Fatalf("log action: %v", err)
		}
		if id <= last {
			t.Fatalf("ids must grow: got %d after %d", id, last)
		}
		last = id
	}
}

func TestRecentActionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.LogAction(ctx, model.AuditCreate, nil, "maria", nil, nil)
	s.LogAction(ctx, model.AuditDelete, nil, "maria", nil, nil)

	entries, err := s.RecentActions(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Action != model.AuditDelete {
		t.Errorf("expected newest first, got %q", entries[0].Action)
	}
}

func TestAuditFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a1, a2 := 1, 2
	fb := 9
	s.LogAction(ctx, model.AuditCreate, &a1, "maria", map[string]string{"title": "VIN fix"}, nil)
	s.LogAction(ctx, model.AuditUpdate, &a1, "li", nil, nil)
	s.LogAction(ctx, model.AuditDelete, &a2, "maria", nil, &fb)

	byArticle, err := s.ArticleAuditHistory(ctx, a1)
	if err != nil {
		t.Fatalf("article history: %v", err)
	}
	if len(byArticle) != 2 {
		t.Errorf("expected 2 for article 1, got %d", len(byArticle))
	}
	if byArticle[0].Details["title"] != "VIN fix" {
		t.Errorf("details lost: %v", byArticle[0].Details)
	}

	byUser, err := s.UserActions(ctx, "maria")
	if err != nil {
		t.Fatalf("user actions: %v", err)
	}
	if len(byUser) != 2 {
		t.Errorf("expected 2 for maria, got %d", len(byUser))
	}
	if byUser[1].FeedbackID == nil || *byUser[1].FeedbackID != 9 {
		t.Errorf("feedback id lost: %+v", byUser[1])
	}
}

func TestAuditStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a1, a2 := 1, 2
	s.LogAction(ctx, model.AuditCreate, &a1, "maria", nil, nil)
	s.LogAction(ctx, model.AuditUpdate, &a1, "maria", nil, nil)
	s.LogAction(ctx, model.AuditUpdate, &a2, "li", nil, nil)

	stats, err := s.AuditStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalActions != 3 {
		t.Errorf("expected 3 actions, got %d", stats.TotalActions)
	}
	if stats.ActionsByType[model.AuditUpdate] != 2 {
		t.Errorf("expected 2 updates, got %v", stats.ActionsByType)
	}
	if stats.MostActiveUser != "maria" {
		t.Errorf("expected maria, got %q", stats.MostActiveUser)
	}
	if stats.UniqueUsers != 2 {
		t.Errorf("expected 2 users, got %d", stats.UniqueUsers)
	}
	if stats.MostModifiedArticle == nil || *stats.MostModifiedArticle != 1 {
		t.Errorf("expected article 1 most modified, got %v", stats.MostModifiedArticle)
	}
}

func TestAuditStatsEmpty(t *testing.T) {
	s := newTestStore(t)
	stats, err := s.AuditStats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalActions != 0 || stats.MostActiveUser != "" {
		t.Errorf("empty ledger should report zeros: %+v", stats)
	}
}
