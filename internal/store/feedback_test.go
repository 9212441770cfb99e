package store

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rcliao/support-kb/internal/model"
)

func submitTestFeedback(t *testing.T, s *Store, worked bool, articleID *int) int {
	t.Helper()
	id, err := s.AddFeedback(context.Background(), AddFeedbackParams{
		TicketData: model.TicketData{
			Subject: "Inventory not syncing",
			Text:    "Dealer reports inventory feed stale for 2 days",
		},
		MatchedArticleID: articleID,
		AgentFeedback: model.AgentFeedback{
			ActualSolution: "Re-authorized the feed credentials",
			AgentName:      "sam",
		},
		ResolutionWorked: worked,
	})
	if err != nil {
		t.Fatalf("add feedback: %v", err)
	}
	return id
}

func TestAddAndGetFeedback(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id := submitTestFeedback(t, s, true, nil)
	if id != 1 {
		t.Errorf("expected id 1, got %d", id)
	}

	item, err := s.GetFeedback(ctx, id)
	if err != nil {
		t.Fatalf("get feedback: %v", err)
	}
	if item.Status != model.StatusPending {
		t.Errorf("expected pending, got %q", item.Status)
	}
	if !item.ResolutionWorked {
		t.Error("resolution_worked lost")
	}
	if item.AgentFeedback.AgentName != "sam" {
		t.Errorf("agent name lost: %q", item.AgentFeedback.AgentName)
	}
	if item.Recommendation != nil {
		t.Error("fresh feedback should have no recommendation")
	}
}

func TestAddFeedbackDefaultsAgentName(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.AddFeedback(ctx, AddFeedbackParams{
		TicketData:    model.TicketData{Text: "something broke"},
		AgentFeedback: model.AgentFeedback{ActualSolution: "restarted it"},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	item, _ := s.GetFeedback(ctx, id)
	if item.AgentFeedback.AgentName != "Unknown" {
		t.Errorf("expected Unknown agent, got %q", item.AgentFeedback.AgentName)
	}
}

func TestListFeedbackByStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id1 := submitTestFeedback(t, s, true, nil)
	submitTestFeedback(t, s, false, nil)

	if err := s.SettleFeedback(ctx, id1, model.StatusApplied, "done"); err != nil {
		t.Fatalf("settle: %v", err)
	}

	pending, err := s.ListFeedback(ctx, ListFeedbackParams{Status: model.StatusPending})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected 1 pending, got %d", len(pending))
	}

	if _, err := s.ListFeedback(ctx, ListFeedbackParams{Status: "bogus"}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for bad status, got %v", err)
	}
}

func TestSetRecommendationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := submitTestFeedback(t, s, true, nil)

	first := model.Recommendation{Action: model.ActionNone, Reasoning: "duplicate", Confidence: 60}
	if err := s.SetRecommendation(ctx, id, first); err != nil {
		t.Fatalf("set: %v", err)
	}
	target := 1
	second := model.Recommendation{Action: model.ActionRemove, TargetID: &target, Confidence: 90}
	if err := s.SetRecommendation(ctx, id, second); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	item, _ := s.GetFeedback(ctx, id)
	if item.Recommendation == nil || item.Recommendation.Action != model.ActionRemove {
		t.Errorf("overwrite lost: %+v", item.Recommendation)
	}
	if item.RecommendationAt == nil {
		t.Error("recommendation_at should be set")
	}
}

func TestSettleFeedbackOnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := submitTestFeedback(t, s, true, nil)

	if err := s.SettleFeedback(ctx, id, model.StatusDismissed, "not actionable"); err != nil {
		t.Fatalf("settle: %v", err)
	}

	err := s.SettleFeedback(ctx, id, model.StatusApplied, "changed my mind")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("second settle should fail with ErrValidation, got %v", err)
	}

	item, _ := s.GetFeedback(ctx, id)
	if item.Status != model.StatusDismissed {
		t.Errorf("status should stay dismissed, got %q", item.Status)
	}
	if item.AuditNotes != "not actionable" {
		t.Errorf("audit notes lost: %q", item.AuditNotes)
	}
	if item.ReviewedAt == nil {
		t.Error("reviewed_at should be set")
	}
}

func TestSettleFeedbackValidatesStatus(t *testing.T) {
	s := newTestStore(t)
	id := submitTestFeedback(t, s, true, nil)

	err := s.SettleFeedback(context.Background(), id, model.StatusPending, "")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("settling back to pending must fail, got %v", err)
	}
}

func TestSettleFeedbackNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.SettleFeedback(context.Background(), 42, model.StatusApplied, "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFeedbackStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	article := 7
	submitTestFeedback(t, s, true, &article)
	submitTestFeedback(t, s, true, &article)
	id3 := submitTestFeedback(t, s, false, nil)
	s.SettleFeedback(ctx, id3, model.StatusDismissed, "dup")

	stats, err := s.FeedbackStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("expected total 3, got %d", stats.Total)
	}
	if stats.ByStatus[model.StatusPending] != 2 || stats.ByStatus[model.StatusDismissed] != 1 {
		t.Errorf("by-status wrong: %v", stats.ByStatus)
	}
	if math.Abs(stats.ResolutionSuccessRate-2.0/3.0) > 1e-9 {
		t.Errorf("expected success rate 2/3, got %v", stats.ResolutionSuccessRate)
	}
	if len(stats.MostReportedArticles) != 1 || stats.MostReportedArticles[0].ArticleID != 7 || stats.MostReportedArticles[0].Count != 2 {
		t.Errorf("most reported wrong: %+v", stats.MostReportedArticles)
	}
}
