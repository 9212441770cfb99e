// Package workflow drives the feedback loop: agents report how a
// resolution went, the reasoning service proposes a KB change, and a
// reviewer applies or dismisses it. The KB never mutates from raw
// feedback; only an applied recommendation changes articles.
package workflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/rcliao/support-kb/internal/model"
	"github.com/rcliao/support-kb/internal/store"
)

// Recommender proposes a KB mutation for a feedback item. Implemented
// by the reasoning client.
type Recommender interface {
	AnalyzeResolution(ctx context.Context, item *model.FeedbackItem, candidates []model.SearchResult) (model.Recommendation, error)
}

// Searcher finds candidate articles to show the recommender.
type Searcher interface {
	Search(ctx context.Context, query string, cls model.Classification) ([]model.SearchResult, error)
}

// Workflow coordinates feedback intake, recommendation, and review.
type Workflow struct {
	store       *store.Store
	recommender Recommender
	searcher    Searcher
	logger      *slog.Logger
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithRecommender enables Recommend.
func WithRecommender(r Recommender) Option {
	return func(w *Workflow) { w.recommender = r }
}

// WithSearcher supplies candidate articles to the recommender.
func WithSearcher(s Searcher) Option {
	return func(w *Workflow) { w.searcher = s }
}

// WithLogger sets the workflow logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}

// New creates a feedback workflow over the given store.
func New(st *store.Store, opts ...Option) *Workflow {
	w := &Workflow{
		store:  st,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Submit queues agent feedback for review and returns its id.
func (w *Workflow) Submit(ctx context.Context, p store.AddFeedbackParams) (int, error) {
	if strings.TrimSpace(p.TicketData.Text) == "" {
		return 0, fmt.Errorf("%w: ticket text is required", store.ErrValidation)
	}
	if strings.TrimSpace(p.AgentFeedback.ActualSolution) == "" {
		return 0, fmt.Errorf("%w: actual solution is required", store.ErrValidation)
	}
	return w.store.AddFeedback(ctx, p)
}

// Recommend asks the reasoning service what a feedback item should do
// to the KB and stores the validated recommendation on the item.
func (w *Workflow) Recommend(ctx context.Context, id int) (model.Recommendation, error) {
	var rec model.Recommendation
	if w.recommender == nil {
		return rec, fmt.Errorf("%w: no reasoning service configured", store.ErrValidation)
	}

	item, err := w.store.GetFeedback(ctx, id)
	if err != nil {
		return rec, err
	}

	candidates := w.candidates(ctx, item)
	rec, err = w.recommender.AnalyzeResolution(ctx, item, candidates)
	if err != nil {
		return rec, err
	}
	if err := w.AttachRecommendation(ctx, id, rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// AttachRecommendation validates a recommendation and stores it on the
// feedback item. Malformed payloads are rejected here, not at apply
// time, so a reviewer never sees an unactionable suggestion.
func (w *Workflow) AttachRecommendation(ctx context.Context, id int, rec model.Recommendation) error {
	if err := validateRecommendation(rec); err != nil {
		return err
	}
	return w.store.SetRecommendation(ctx, id, rec)
}

// ApplyOutcome reports what Apply did.
type ApplyOutcome struct {
	Action    string `json:"action"`
	ArticleID *int   `json:"article_id,omitempty"`
}

// Apply executes a feedback item's recommendation against the KB, marks
// the item applied, and writes one audit entry. The item must still be
// pending and must carry a recommendation. If the KB mutation fails the
// item stays pending so it can be retried.
func (w *Workflow) Apply(ctx context.Context, id int, user string) (*ApplyOutcome, error) {
	item, err := w.store.GetFeedback(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != model.StatusPending {
		return nil, fmt.Errorf("%w: feedback %d already %s", store.ErrValidation, id, item.Status)
	}
	if item.Recommendation == nil {
		return nil, fmt.Errorf("%w: feedback %d has no recommendation", store.ErrValidation, id)
	}
	rec := *item.Recommendation
	if err := validateRecommendation(rec); err != nil {
		return nil, err
	}

	outcome := &ApplyOutcome{Action: rec.Action}
	auditAction := model.AuditNone
	details := map[string]string{"reasoning": rec.Reasoning}

	switch rec.Action {
	case model.ActionAddNew:
		article := *rec.ProposedArticle
		articleID, err := w.store.CreateArticle(ctx, &article)
		if err != nil {
			return nil, fmt.Errorf("apply feedback %d: %w", id, err)
		}
		outcome.ArticleID = &articleID
		auditAction = model.AuditCreate
		details["title"] = article.Title

	case model.ActionUpdateExisting:
		update := proposedUpdate(rec, item)
		if update.Empty() {
			return nil, fmt.Errorf("%w: feedback %d proposes no changes", store.ErrValidation, id)
		}
		reason := rec.Reasoning
		if reason == "" {
			reason = fmt.Sprintf("updated from feedback %d", id)
		}
		if err := w.store.UpdateArticle(ctx, *rec.TargetID, update, reason); err != nil {
			return nil, fmt.Errorf("apply feedback %d: %w", id, err)
		}
		outcome.ArticleID = rec.TargetID
		auditAction = model.AuditUpdate

	case model.ActionRemove:
		if err := w.store.DeleteArticle(ctx, *rec.TargetID); err != nil {
			return nil, fmt.Errorf("apply feedback %d: %w", id, err)
		}
		outcome.ArticleID = rec.TargetID
		auditAction = model.AuditDelete

	case model.ActionNone:
		// Nothing to change; the item still settles as applied.
	}

	notes := fmt.Sprintf("applied recommendation: %s", rec.Action)
	if err := w.store.SettleFeedback(ctx, id, model.StatusApplied, notes); err != nil {
		return nil, err
	}

	if _, err := w.store.LogAction(ctx, auditAction, outcome.ArticleID, user, details, &id); err != nil {
		w.logger.Warn("audit write failed", "feedback_id", id, "error", err)
	}
	return outcome, nil
}

// Dismiss settles a pending feedback item without touching the KB.
func (w *Workflow) Dismiss(ctx context.Context, id int, reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = "dismissed without reason"
	}
	return w.store.SettleFeedback(ctx, id, model.StatusDismissed, reason)
}

// Delete permanently removes a feedback item, whatever its state.
func (w *Workflow) Delete(ctx context.Context, id int) error {
	return w.store.DeleteFeedback(ctx, id)
}

// candidates pulls the articles the recommender should compare the
// resolution against. Search failures degrade to no candidates.
func (w *Workflow) candidates(ctx context.Context, item *model.FeedbackItem) []model.SearchResult {
	if w.searcher == nil {
		return nil
	}
	t := item.TicketData
	query := strings.TrimSpace(t.Subject + " " + t.Text)
	cls := model.Classification{
		Category:    t.Category,
		SubCategory: t.SubCategory,
		Syndicator:  t.Syndicator,
		Provider:    t.Provider,
		DealerName:  t.DealerName,
	}
	results, err := w.searcher.Search(ctx, query, cls)
	if err != nil {
		w.logger.Warn("candidate search failed", "feedback_id", item.ID, "error", err)
		return nil
	}
	if len(results) > 3 {
		results = results[:3]
	}
	return results
}

func validateRecommendation(rec model.Recommendation) error {
	if !model.ValidActions[rec.Action] {
		return fmt.Errorf("%w: unknown action %q", store.ErrValidation, rec.Action)
	}
	switch rec.Action {
	case model.ActionUpdateExisting, model.ActionRemove:
		if rec.TargetID == nil {
			return fmt.Errorf("%w: action %s requires a target article", store.ErrValidation, rec.Action)
		}
	case model.ActionAddNew:
		if rec.ProposedArticle == nil || strings.TrimSpace(rec.ProposedArticle.Title) == "" {
			return fmt.Errorf("%w: action add_new requires a proposed article with a title", store.ErrValidation)
		}
	}
	return nil
}

// proposedUpdate turns an update_existing recommendation into field
// changes. Prefers the proposed article's fields; falls back to the
// agent's actual solution.
func proposedUpdate(rec model.Recommendation, item *model.FeedbackItem) model.ArticleUpdate {
	var u model.ArticleUpdate
	if p := rec.ProposedArticle; p != nil {
		if p.Title != "" {
			u.Title = &p.Title
		}
		if p.Problem != "" {
			u.Problem = &p.Problem
		}
		if p.Solution != "" {
			u.Solution = &p.Solution
		}
		if len(p.Steps) > 0 {
			u.Steps = &p.Steps
		}
		if len(p.Tags) > 0 {
			u.Tags = &p.Tags
		}
		if p.Category != "" {
			u.Category = &p.Category
		}
		if p.SubCategory != "" {
			u.SubCategory = &p.SubCategory
		}
		if p.Syndicator != "" {
			u.Syndicator = &p.Syndicator
		}
		if p.Provider != "" {
			u.Provider = &p.Provider
		}
	}
	if u.Solution == nil && item.AgentFeedback.ActualSolution != "" {
		u.Solution = &item.AgentFeedback.ActualSolution
	}
	return u
}
