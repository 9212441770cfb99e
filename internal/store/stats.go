package store

import (
	"context"
	"os"
)

// KBStats holds knowledge-base statistics.
type KBStats struct {
	DBPath           string         `json:"db_path,omitempty"`
	DBSizeBytes      int64          `json:"db_size_bytes,omitempty"`
	TotalArticles    int            `json:"total_articles"`
	AvgSuccessRate   float64        `json:"avg_success_rate"`
	TotalUsage       int            `json:"total_usage"`
	WithEmbeddings   int            `json:"with_embeddings"`
	ByCategory       map[string]int `json:"articles_by_category,omitempty"`
	BySubCategory    map[string]int `json:"articles_by_subcategory,omitempty"`
	TotalAuditEvents int            `json:"total_audit_events"`
}

// Stats returns knowledge-base statistics.
func (s *Store) Stats(ctx context.Context, dbPath string) (*KBStats, error) {
	st := &KBStats{
		DBPath:        dbPath,
		ByCategory:    map[string]int{},
		BySubCategory: map[string]int{},
	}

	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(success_rate), 0), COALESCE(SUM(usage_count), 0)
		 FROM articles`).Scan(&st.TotalArticles, &st.AvgSuccessRate, &st.TotalUsage); err != nil {
		return nil, err
	}
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM articles WHERE embedding IS NOT NULL`).Scan(&st.WithEmbeddings)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_log`).Scan(&st.TotalAuditEvents)

	rows, err := s.db.QueryContext(ctx,
		`SELECT category, sub_category FROM articles`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var cat, sub string
		if err := rows.Scan(&cat, &sub); err != nil {
			return nil, err
		}
		if cat == "" {
			cat = "Unknown"
		}
		if sub == "" {
			sub = "Unknown"
		}
		st.ByCategory[cat]++
		st.BySubCategory[sub]++
	}
	return st, rows.Err()
}
