package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rcliao/support-kb/internal/model"
)

// LogAction appends one entry to the audit ledger and returns its id.
// The ledger has no update or delete API; ids are monotonic and the row
// is durable before return.
func (s *Store) LogAction(ctx context.Context, action string, articleID *int, user string, details map[string]string, feedbackID *int) (int, error) {
	var detailsJSON interface{}
	if len(details) > 0 {
		b, _ := json.Marshal(details)
		detailsJSON = string(b)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (timestamp, action, article_id, user, feedback_id, details)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339), action, articleID, user, feedbackID, detailsJSON)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return int(id), nil
}

// RecentActions returns the newest entries, most recent first.
func (s *Store) RecentActions(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryAudit(ctx,
		`SELECT `+auditCols+` FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
}

// ArticleAuditHistory returns every ledger entry touching one article.
func (s *Store) ArticleAuditHistory(ctx context.Context, articleID int) ([]model.AuditEntry, error) {
	return s.queryAudit(ctx,
		`SELECT `+auditCols+` FROM audit_log WHERE article_id = ? ORDER BY id`, articleID)
}

// UserActions returns every ledger entry recorded for one user.
func (s *Store) UserActions(ctx context.Context, user string) ([]model.AuditEntry, error) {
	return s.queryAudit(ctx,
		`SELECT `+auditCols+` FROM audit_log WHERE user = ? ORDER BY id`, user)
}

// AuditStats summarizes the ledger.
func (s *Store) AuditStats(ctx context.Context) (*model.AuditStats, error) {
	stats := &model.AuditStats{ActionsByType: map[string]int{}}

	rows, err := s.db.QueryContext(ctx,
		`SELECT action, COUNT(*) FROM audit_log GROUP BY action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var action string
		var n int
		if err := rows.Scan(&action, &n); err != nil {
			return nil, err
		}
		stats.ActionsByType[action] = n
		stats.TotalActions += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if stats.TotalActions == 0 {
		return stats, nil
	}

	s.db.QueryRowContext(ctx,
		`SELECT user FROM audit_log GROUP BY user ORDER BY COUNT(*) DESC, user LIMIT 1`).
		Scan(&stats.MostActiveUser)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT user) FROM audit_log`).Scan(&stats.UniqueUsers)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT article_id) FROM audit_log WHERE article_id IS NOT NULL`).
		Scan(&stats.UniqueArticles)

	var topArticle sql.NullInt64
	s.db.QueryRowContext(ctx,
		`SELECT article_id FROM audit_log WHERE article_id IS NOT NULL
		 GROUP BY article_id ORDER BY COUNT(*) DESC, article_id LIMIT 1`).
		Scan(&topArticle)
	if topArticle.Valid {
		id := int(topArticle.Int64)
		stats.MostModifiedArticle = &id
	}

	return stats, nil
}

const auditCols = `id, timestamp, action, article_id, user, feedback_id, details`

func (s *Store) queryAudit(ctx context.Context, query string, args ...interface{}) ([]model.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var ts string
		var articleID, feedbackID sql.NullInt64
		var details sql.NullString
		if err := rows.Scan(&e.ID, &ts, &e.Action, &articleID, &e.User, &feedbackID, &details); err != nil {
			return nil, err
		}
		e.Timestamp, _ = time.Parse(time.RFC3339, ts)
		if articleID.Valid {
			id := int(articleID.Int64)
			e.ArticleID = &id
		}
		if feedbackID.Valid {
			id := int(feedbackID.Int64)
			e.FeedbackID = &id
		}
		if details.Valid {
			json.Unmarshal([]byte(details.String), &e.Details)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
