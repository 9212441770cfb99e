package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rcliao/support-kb/internal/model"
)

// LogSearchParams describes one search for the gap log.
type LogSearchParams struct {
	Query          string
	ResultsFound   bool
	ArticleID      *int
	ResultCount    int
	Classification model.Classification
}

// LogSearch appends a search to the bounded log. Once over capacity the
// oldest entries are dropped, FIFO. ULID ids sort in insertion order, so
// the trim can key on the id.
func (s *Store) LogSearch(ctx context.Context, p LogSearchParams) error {
	found := 0
	if p.ResultsFound {
		found = 1
	}
	var classJSON interface{}
	if !p.Classification.Empty() {
		b, _ := json.Marshal(p.Classification)
		classJSON = string(b)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO search_log (id, query, query_norm, timestamp, results_found,
		                         article_id, result_count, classification)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.newULID(), p.Query, normalizeQuery(p.Query),
		time.Now().UTC().Format(time.RFC3339), found,
		p.ArticleID, p.ResultCount, classJSON)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM search_log WHERE id NOT IN
		 (SELECT id FROM search_log ORDER BY id DESC LIMIT ?)`, s.searchLogCap)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// FailedSearches returns logged searches that found nothing within the
// lookback window.
func (s *Store) FailedSearches(ctx context.Context, days int) ([]model.SearchLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, timestamp, results_found, article_id, result_count, classification
		 FROM search_log WHERE results_found = 0 AND timestamp >= ? ORDER BY id`,
		cutoff(days))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSearchLog(rows)
}

// KnowledgeGaps groups failed searches by normalized query and ranks
// them by frequency. Three or more repeats is a high-priority gap.
func (s *Store) KnowledgeGaps(ctx context.Context, days int) ([]model.KnowledgeGap, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT query_norm, COUNT(*) AS freq, MIN(timestamp), MAX(timestamp)
		 FROM search_log WHERE results_found = 0 AND timestamp >= ?
		 GROUP BY query_norm ORDER BY freq DESC, query_norm`,
		cutoff(days))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gaps []model.KnowledgeGap
	for rows.Next() {
		var g model.KnowledgeGap
		var first, last string
		if err := rows.Scan(&g.Query, &g.Frequency, &first, &last); err != nil {
			return nil, err
		}
		g.FirstSeen, _ = time.Parse(time.RFC3339, first)
		g.LastSeen, _ = time.Parse(time.RFC3339, last)
		switch {
		case g.Frequency >= 3:
			g.Priority = "high"
		case g.Frequency == 2:
			g.Priority = "medium"
		default:
			g.Priority = "low"
		}
		gaps = append(gaps, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Attach the categories the failed searches were classified under.
	for i := range gaps {
		cats, err := s.gapCategories(ctx, gaps[i].Query, days)
		if err != nil {
			return nil, err
		}
		gaps[i].Categories = cats
	}
	return gaps, nil
}

// MostSearched returns the most frequent normalized queries in the
// window.
func (s *Store) MostSearched(ctx context.Context, days, limit int) ([]model.TopicCount, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT query_norm, COUNT(*) AS cnt FROM search_log WHERE timestamp >= ?
		 GROUP BY query_norm ORDER BY cnt DESC, query_norm LIMIT ?`,
		cutoff(days), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var topics []model.TopicCount
	for rows.Next() {
		var t model.TopicCount
		if err := rows.Scan(&t.Query, &t.Count); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// SearchAnalytics aggregates the window: totals, hit rate, average
// result count, top gaps, and the most frequent queries.
func (s *Store) SearchAnalytics(ctx context.Context, days int) (*model.SearchAnalytics, error) {
	a := &model.SearchAnalytics{}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(results_found), 0) FROM search_log WHERE timestamp >= ?`,
		cutoff(days)).Scan(&a.TotalSearches, &a.SuccessfulSearches)
	if err != nil {
		return nil, err
	}
	a.FailedSearches = a.TotalSearches - a.SuccessfulSearches
	if a.TotalSearches == 0 {
		return a, nil
	}
	a.SuccessRate = round2(float64(a.SuccessfulSearches) / float64(a.TotalSearches) * 100)

	var avg sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT AVG(result_count) FROM search_log WHERE timestamp >= ? AND result_count > 0`,
		cutoff(days)).Scan(&avg)
	if err != nil {
		return nil, err
	}
	if avg.Valid {
		a.AvgResultsPerQuery = round2(avg.Float64)
	}

	gaps, err := s.KnowledgeGaps(ctx, days)
	if err != nil {
		return nil, err
	}
	if len(gaps) > 10 {
		gaps = gaps[:10]
	}
	a.KnowledgeGaps = gaps

	a.MostSearched, err = s.MostSearched(ctx, days, 10)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// SearchTrends rolls searches up per day over the window.
func (s *Store) SearchTrends(ctx context.Context, days int) (*model.Trends, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT substr(timestamp, 1, 10) AS day, COUNT(*), COALESCE(SUM(results_found), 0)
		 FROM search_log WHERE timestamp >= ? GROUP BY day ORDER BY day`,
		cutoff(days))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	t := &model.Trends{PeriodDays: days}
	total := 0
	for rows.Next() {
		var d model.DailyTrend
		if err := rows.Scan(&d.Date, &d.Total, &d.Successful); err != nil {
			return nil, err
		}
		d.Failed = d.Total - d.Successful
		if d.Total > 0 {
			d.SuccessRate = round2(float64(d.Successful) / float64(d.Total) * 100)
		}
		t.DailyTrends = append(t.DailyTrends, d)
		total += d.Total
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(t.DailyTrends) > 0 {
		t.AvgDailySearches = round2(float64(total) / float64(len(t.DailyTrends)))
	}
	return t, nil
}

func (s *Store) gapCategories(ctx context.Context, queryNorm string, days int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT classification FROM search_log
		 WHERE results_found = 0 AND query_norm = ? AND timestamp >= ?
		   AND classification IS NOT NULL ORDER BY id`,
		queryNorm, cutoff(days))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []string
	for rows.Next() {
		var classJSON string
		if err := rows.Scan(&classJSON); err != nil {
			return nil, err
		}
		var c model.Classification
		if err := json.Unmarshal([]byte(classJSON), &c); err == nil && c.Category != "" {
			cats = append(cats, c.Category)
		}
	}
	return cats, rows.Err()
}

func scanSearchLog(rows *sql.Rows) ([]model.SearchLogEntry, error) {
	var entries []model.SearchLogEntry
	for rows.Next() {
		var e model.SearchLogEntry
		var ts string
		var found int
		var articleID sql.NullInt64
		var classJSON sql.NullString
		if err := rows.Scan(&e.ID, &e.Query, &ts, &found, &articleID, &e.ResultCount, &classJSON); err != nil {
			return nil, err
		}
		e.Timestamp, _ = time.Parse(time.RFC3339, ts)
		e.ResultsFound = found == 1
		if articleID.Valid {
			id := int(articleID.Int64)
			e.ArticleID = &id
		}
		if classJSON.Valid {
			json.Unmarshal([]byte(classJSON.String), &e.Classification)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

func cutoff(days int) string {
	if days <= 0 {
		days = 30
	}
	return time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
