package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/support-kb/internal/model"
)

// AddFeedbackParams holds what an agent submits after a resolution.
type AddFeedbackParams struct {
	TicketData       model.TicketData
	MatchedArticleID *int
	AgentFeedback    model.AgentFeedback
	ResolutionWorked bool
}

// ListFeedbackParams filters ListFeedback.
type ListFeedbackParams struct {
	Status    string
	ArticleID *int
	Limit     int
}

// FeedbackStats summarizes the feedback queue.
type FeedbackStats struct {
	Total                 int            `json:"total_feedback"`
	ByStatus              map[string]int `json:"by_status"`
	MostReportedArticles  []ArticleCount `json:"most_reported_articles"`
	ResolutionSuccessRate float64        `json:"resolution_success_rate"`
}

// ArticleCount pairs an article id with a feedback count.
type ArticleCount struct {
	ArticleID int `json:"article_id"`
	Count     int `json:"count"`
}

// AddFeedback stores a new pending feedback item and returns its id.
func (s *Store) AddFeedback(ctx context.Context, p AddFeedbackParams) (int, error) {
	if p.AgentFeedback.AgentName == "" {
		p.AgentFeedback.AgentName = "Unknown"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var id int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(id), 0) + 1 FROM feedback_items`).Scan(&id); err != nil {
		return 0, err
	}

	worked := 0
	if p.ResolutionWorked {
		worked = 1
	}
	ticketJSON, _ := json.Marshal(p.TicketData)
	agentJSON, _ := json.Marshal(p.AgentFeedback)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO feedback_items (id, timestamp, ticket_data, matched_article_id,
		                             resolution_worked, agent_feedback, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339), string(ticketJSON),
		p.MatchedArticleID, worked, string(agentJSON), model.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("insert feedback: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// GetFeedback returns a feedback item by id.
func (s *Store) GetFeedback(ctx context.Context, id int) (*model.FeedbackItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+feedbackCols+` FROM feedback_items WHERE id = ?`, id)
	item, err := scanFeedback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("feedback %d: %w", id, ErrNotFound)
	}
	return item, err
}

// ListFeedback returns feedback items, optionally filtered by status or
// matched article.
func (s *Store) ListFeedback(ctx context.Context, p ListFeedbackParams) ([]*model.FeedbackItem, error) {
	query := `SELECT ` + feedbackCols + ` FROM feedback_items`
	var where []string
	var args []interface{}

	if p.Status != "" {
		if !model.ValidStatuses[p.Status] {
			return nil, fmt.Errorf("%w: status %q", ErrValidation, p.Status)
		}
		where = append(where, "status = ?")
		args = append(args, p.Status)
	}
	if p.ArticleID != nil {
		where = append(where, "matched_article_id = ?")
		args = append(args, *p.ArticleID)
	}
	for i, w := range where {
		if i == 0 {
			query += " WHERE " + w
		} else {
			query += " AND " + w
		}
	}
	query += " ORDER BY id"
	if p.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, p.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*model.FeedbackItem
	for rows.Next() {
		item, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SetRecommendation caches the reasoning service's recommendation on a
// feedback item. Idempotent: a later call overwrites.
func (s *Store) SetRecommendation(ctx context.Context, id int, rec model.Recommendation) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE feedback_items SET recommendation = ?, recommendation_at = ? WHERE id = ?`,
		string(b), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("feedback %d: %w", id, ErrNotFound)
	}
	return nil
}

// SettleFeedback moves a pending item to a terminal status. The guard on
// the current status makes the pending→terminal transition happen at
// most once even under concurrent callers.
func (s *Store) SettleFeedback(ctx context.Context, id int, status, auditNotes string) error {
	if status != model.StatusApplied && status != model.StatusDismissed {
		return fmt.Errorf("%w: settle status %q", ErrValidation, status)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE feedback_items SET status = ?, audit_notes = ?, reviewed_at = ?
		 WHERE id = ? AND status = ?`,
		status, auditNotes, time.Now().UTC().Format(time.RFC3339), id, model.StatusPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish missing from already-settled.
		var current string
		err := s.db.QueryRowContext(ctx,
			`SELECT status FROM feedback_items WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("feedback %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: feedback %d already %s", ErrValidation, id, current)
	}
	return nil
}

// DeleteFeedback permanently removes a feedback item, whatever its state.
func (s *Store) DeleteFeedback(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM feedback_items WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("feedback %d: %w", id, ErrNotFound)
	}
	return nil
}

// FeedbackStats summarizes the feedback queue: counts by status, the
// most-reported articles, and how often suggested resolutions worked.
func (s *Store) FeedbackStats(ctx context.Context) (*FeedbackStats, error) {
	stats := &FeedbackStats{ByStatus: map[string]int{}}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM feedback_items GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats.ByStatus[status] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if stats.Total == 0 {
		return stats, nil
	}

	var worked int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feedback_items WHERE resolution_worked = 1`).Scan(&worked); err != nil {
		return nil, err
	}
	stats.ResolutionSuccessRate = float64(worked) / float64(stats.Total)

	top, err := s.db.QueryContext(ctx,
		`SELECT matched_article_id, COUNT(*) AS cnt FROM feedback_items
		 WHERE matched_article_id IS NOT NULL
		 GROUP BY matched_article_id ORDER BY cnt DESC, matched_article_id LIMIT 5`)
	if err != nil {
		return nil, err
	}
	defer top.Close()
	for top.Next() {
		var ac ArticleCount
		if err := top.Scan(&ac.ArticleID, &ac.Count); err != nil {
			return nil, err
		}
		stats.MostReportedArticles = append(stats.MostReportedArticles, ac)
	}
	return stats, top.Err()
}

const feedbackCols = `id, timestamp, ticket_data, matched_article_id,
	resolution_worked, agent_feedback, status, audit_notes,
	recommendation, recommendation_at, reviewed_at`

func scanFeedback(row scanner) (*model.FeedbackItem, error) {
	var item model.FeedbackItem
	var ts, ticketJSON, agentJSON string
	var articleID sql.NullInt64
	var worked int
	var rec, recAt, reviewedAt sql.NullString

	err := row.Scan(&item.ID, &ts, &ticketJSON, &articleID, &worked,
		&agentJSON, &item.Status, &item.AuditNotes, &rec, &recAt, &reviewedAt)
	if err != nil {
		return nil, err
	}

	item.Timestamp, _ = time.Parse(time.RFC3339, ts)
	item.ResolutionWorked = worked == 1
	json.Unmarshal([]byte(ticketJSON), &item.TicketData)
	json.Unmarshal([]byte(agentJSON), &item.AgentFeedback)
	if articleID.Valid {
		id := int(articleID.Int64)
		item.MatchedArticleID = &id
	}
	if rec.Valid {
		var r model.Recommendation
		if err := json.Unmarshal([]byte(rec.String), &r); err == nil {
			item.Recommendation = &r
		}
	}
	if recAt.Valid {
		t, _ := time.Parse(time.RFC3339, recAt.String)
		item.RecommendationAt = &t
	}
	if reviewedAt.Valid {
		t, _ := time.Parse(time.RFC3339, reviewedAt.String)
		item.ReviewedAt = &t
	}
	return &item, nil
}
