package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rcliao/support-kb/internal/model"
	"github.com/rcliao/support-kb/internal/store"
)

type fakeRecommender struct {
	rec model.Recommendation
	err error
}

func (f *fakeRecommender) AnalyzeResolution(ctx context.Context, item *model.FeedbackItem, candidates []model.SearchResult) (model.Recommendation, error) {
	return f.rec, f.err
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

func submitFeedback(t *testing.T, w *Workflow) int {
	t.Helper()
	id, err := w.Submit(context.Background(), store.AddFeedbackParams{
		TicketData: model.TicketData{
			Subject: "Feed stale",
			Text:    "Inventory feed has not updated in two days",
		},
		AgentFeedback: model.AgentFeedback{
			ActualSolution: "Re-authorized the feed credentials",
			AgentName:      "sam",
		},
		ResolutionWorked: true,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return id
}

func TestSubmitValidatesInput(t *testing.T) {
	ctx := context.Background()
	w := New(newTestStore(t))

	_, err := w.Submit(ctx, store.AddFeedbackParams{
		AgentFeedback: model.AgentFeedback{ActualSolution: "did things"},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Errorf("missing ticket text should fail, got %v", err)
	}

	_, err = w.Submit(ctx, store.AddFeedbackParams{
		TicketData: model.TicketData{Text: "something broke"},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Errorf("missing solution should fail, got %v", err)
	}
}

func TestAttachRecommendationValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	w := New(s)
	id := submitFeedback(t, w)

	cases := []struct {
		name string
		rec  model.Recommendation
	}{
		{"unknown action", model.Recommendation{Action: "escalate"}},
		{"update without target", model.Recommendation{Action: model.ActionUpdateExisting}},
		{"remove without target", model.Recommendation{Action: model.ActionRemove}},
		{"add without article", model.Recommendation{Action: model.ActionAddNew}},
		{"add with untitled article", model.Recommendation{
			Action:          model.ActionAddNew,
			ProposedArticle: &model.Article{Problem: "no title"},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := w.AttachRecommendation(ctx, id, tc.rec); !errors.Is(err, store.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}

	item, _ := s.GetFeedback(ctx, id)
	if item.Recommendation != nil {
		t.Error("rejected recommendations must not be stored")
	}
}

func TestApplyAddNewCreatesArticle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	w := New(s)
	id := submitFeedback(t, w)

	rec := model.Recommendation{
		Action:     model.ActionAddNew,
		Confidence: 85,
		Reasoning:  "new failure mode not covered",
		ProposedArticle: &model.Article{
			Title:    "Feed credential expiry",
			Problem:  "Feeds stop after credential rotation",
			Solution: "Re-authorize the feed",
			Tags:     []string{"feed"},
		},
	}
	if err := w.AttachRecommendation(ctx, id, rec); err != nil {
		t.Fatalf("attach: %v", err)
	}

	outcome, err := w.Apply(ctx, id, "maria")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if outcome.Action != model.ActionAddNew || outcome.ArticleID == nil {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	article, err := s.GetArticle(ctx, *outcome.ArticleID)
	if err != nil {
		t.Fatalf("created article missing: %v", err)
	}
	if article.Title != "Feed credential expiry" {
		t.Errorf("wrong article created: %q", article.Title)
	}

	item, _ := s.GetFeedback(ctx, id)
	if item.Status != model.StatusApplied {
		t.Errorf("expected applied, got %q", item.Status)
	}

	entries, _ := s.RecentActions(ctx, 10)
	if len(entries) != 1 {
		t.Fatalf("expected exactly 1 audit entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Action != model.AuditCreate || e.User != "maria" {
		t.Errorf("audit entry wrong: %+v", e)
	}
	if e.FeedbackID == nil || *e.FeedbackID != id {
		t.Errorf("audit should reference the feedback item: %+v", e)
	}
}

func TestApplyRemoveDeletesArticle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	w := New(s)

	article := &model.Article{Title: "Outdated workaround"}
	if _, err := s.CreateArticle(ctx, article); err != nil {
		t.Fatalf("create: %v", err)
	}

	id := submitFeedback(t, w)
	rec := model.Recommendation{
		Action:    model.ActionRemove,
		TargetID:  &article.ID,
		Reasoning: "superseded by the new flow",
	}
	if err := w.AttachRecommendation(ctx, id, rec); err != nil {
		t.Fatalf("attach: %v", err)
	}

	outcome, err := w.Apply(ctx, id, "maria")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if outcome.ArticleID == nil || *outcome.ArticleID != article.ID {
		t.Errorf("outcome should name the removed article: %+v", outcome)
	}

	if _, err := s.GetArticle(ctx, article.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("article should be gone, got %v", err)
	}

	entries, _ := s.RecentActions(ctx, 10)
	if len(entries) != 1 || entries[0].Action != model.AuditDelete {
		t.Errorf("expected one delete audit entry, got %+v", entries)
	}
	if entries[0].ArticleID == nil || *entries[0].ArticleID != article.ID {
		t.Errorf("audit entry should carry the article id: %+v", entries[0])
	}
}

func TestApplyUpdateExisting(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	w := New(s)

	article := &model.Article{Title: "Feed fix", Solution: "old solution"}
	if _, err := s.CreateArticle(ctx, article); err != nil {
		t.Fatalf("create: %v", err)
	}

	id := submitFeedback(t, w)
	rec := model.Recommendation{
		Action:    model.ActionUpdateExisting,
		TargetID:  &article.ID,
		Reasoning: "resolution is more complete",
	}
	if err := w.AttachRecommendation(ctx, id, rec); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := w.Apply(ctx, id, "maria"); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, _ := s.GetArticle(ctx, article.ID)
	// No proposed article: the agent's actual solution is the update.
	if got.Solution != "Re-authorized the feed credentials" {
		t.Errorf("solution not updated: %q", got.Solution)
	}
	if got.Version != 2 {
		t.Errorf("update should version the article, got v%d", got.Version)
	}
	if got.VersionHistory[0].ChangeReason != "resolution is more complete" {
		t.Errorf("reasoning should become the change reason: %q", got.VersionHistory[0].ChangeReason)
	}
}

func TestApplyUpdateExistingReclassifies(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	w := New(s)

	article := &model.Article{Title: "Feed fix", Category: "Inventory"}
	if _, err := s.CreateArticle(ctx, article); err != nil {
		t.Fatalf("create: %v", err)
	}

	id := submitFeedback(t, w)
	rec := model.Recommendation{
		Action:   model.ActionUpdateExisting,
		TargetID: &article.ID,
		ProposedArticle: &model.Article{
			Solution:    "Re-authorize the feed",
			Category:    "Syndication",
			SubCategory: "Credentials",
			Syndicator:  "AutoTrader",
			Provider:    "HomeNet",
		},
	}
	if err := w.AttachRecommendation(ctx, id, rec); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := w.Apply(ctx, id, "maria"); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, _ := s.GetArticle(ctx, article.ID)
	if got.Category != "Syndication" || got.SubCategory != "Credentials" {
		t.Errorf("classification not applied: %q/%q", got.Category, got.SubCategory)
	}
	if got.Syndicator != "AutoTrader" || got.Provider != "HomeNet" {
		t.Errorf("syndicator/provider not applied: %q/%q", got.Syndicator, got.Provider)
	}
	if got.Solution != "Re-authorize the feed" {
		t.Errorf("solution not applied: %q", got.Solution)
	}
}

func TestApplyNoneSettlesWithoutMutation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	w := New(s)
	id := submitFeedback(t, w)

	rec := model.Recommendation{Action: model.ActionNone, Reasoning: "duplicate of article 3"}
	if err := w.AttachRecommendation(ctx, id, rec); err != nil {
		t.Fatalf("attach: %v", err)
	}
	outcome, err := w.Apply(ctx, id, "maria")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if outcome.ArticleID != nil {
		t.Errorf("none must not touch an article: %+v", outcome)
	}

	item, _ := s.GetFeedback(ctx, id)
	if item.Status != model.StatusApplied {
		t.Errorf("none still settles the item, got %q", item.Status)
	}

	entries, _ := s.RecentActions(ctx, 10)
	if len(entries) != 1 || entries[0].Action != model.AuditNone {
		t.Errorf("expected one none audit entry, got %+v", entries)
	}
}

func TestApplyFailureKeepsItemPending(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	w := New(s)
	id := submitFeedback(t, w)

	missing := 404
	rec := model.Recommendation{Action: model.ActionRemove, TargetID: &missing}
	if err := w.AttachRecommendation(ctx, id, rec); err != nil {
		t.Fatalf("attach: %v", err)
	}

	_, err := w.Apply(ctx, id, "maria")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected the store failure to surface, got %v", err)
	}

	item, _ := s.GetFeedback(ctx, id)
	if item.Status != model.StatusPending {
		t.Errorf("failed apply must leave the item pending, got %q", item.Status)
	}

	entries, _ := s.RecentActions(ctx, 10)
	if len(entries) != 0 {
		t.Errorf("failed apply must not audit, got %+v", entries)
	}
}

func TestApplyTwiceFails(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	w := New(s)
	id := submitFeedback(t, w)

	rec := model.Recommendation{Action: model.ActionNone}
	w.AttachRecommendation(ctx, id, rec)
	if _, err := w.Apply(ctx, id, "maria"); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if _, err := w.Apply(ctx, id, "maria"); !errors.Is(err, store.ErrValidation) {
		t.Errorf("second apply should fail, got %v", err)
	}
}

func TestApplyWithoutRecommendation(t *testing.T) {
	ctx := context.Background()
	w := New(newTestStore(t))
	id := submitFeedback(t, w)

	if _, err := w.Apply(ctx, id, "maria"); !errors.Is(err, store.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestDismiss(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	w := New(s)
	id := submitFeedback(t, w)

	if err := w.Dismiss(ctx, id, "agent misread the ticket"); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	item, _ := s.GetFeedback(ctx, id)
	if item.Status != model.StatusDismissed {
		t.Errorf("expected dismissed, got %q", item.Status)
	}
	if item.AuditNotes != "agent misread the ticket" {
		t.Errorf("reason should be kept: %q", item.AuditNotes)
	}

	if err := w.Dismiss(ctx, id, "again"); !errors.Is(err, store.ErrValidation) {
		t.Errorf("double dismiss should fail, got %v", err)
	}
}

func TestRecommendStoresResult(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	target := 1
	fake := &fakeRecommender{rec: model.Recommendation{
		Action:     model.ActionUpdateExisting,
		TargetID:   &target,
		Confidence: 70,
		Reasoning:  "better steps",
	}}
	w := New(s, WithRecommender(fake))
	id := submitFeedback(t, w)

	rec, err := w.Recommend(ctx, id)
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if rec.Action != model.ActionUpdateExisting {
		t.Errorf("unexpected recommendation: %+v", rec)
	}

	item, _ := s.GetFeedback(ctx, id)
	if item.Recommendation == nil || item.Recommendation.Confidence != 70 {
		t.Errorf("recommendation not persisted: %+v", item.Recommendation)
	}
}

func TestRecommendRejectsInvalidPayload(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	fake := &fakeRecommender{rec: model.Recommendation{Action: "replace_all"}}
	w := New(s, WithRecommender(fake))
	id := submitFeedback(t, w)

	if _, err := w.Recommend(ctx, id); !errors.Is(err, store.ErrValidation) {
		t.Errorf("invalid action from the model must be rejected, got %v", err)
	}
	item, _ := s.GetFeedback(ctx, id)
	if item.Recommendation != nil {
		t.Error("invalid recommendation must not be stored")
	}
}

func TestRecommendWithoutService(t *testing.T) {
	w := New(newTestStore(t))
	id := submitFeedback(t, w)
	if _, err := w.Recommend(context.Background(), id); !errors.Is(err, store.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}
