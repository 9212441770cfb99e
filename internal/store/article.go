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

// ListArticlesParams filters ListArticles.
type ListArticlesParams struct {
	Category    string
	SubCategory string
	Tag         string
	Limit       int
}

// CreateArticle stores a new article and returns its id. Ids are
// max(existing)+1; counters and version start at their defaults.
func (s *Store) CreateArticle(ctx context.Context, a *model.Article) (int, error) {
	if a == nil || a.Title == "" {
		return 0, fmt.Errorf("%w: article title is required", ErrValidation)
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var id int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(id), 0) + 1 FROM articles`).Scan(&id); err != nil {
		return 0, err
	}

	a.ID = id
	a.CreatedAt = now
	a.UpdatedAt = now
	a.Version = 1
	a.VersionHistory = nil
	a.UsageCount = 0
	a.SuccessCount = 0
	a.SuccessRate = 1.0
	a.Upvotes = 0
	a.Downvotes = 0
	a.VoteScore = 0

	_, err = tx.ExecContext(ctx,
		`INSERT INTO articles (id, title, problem, solution, steps, tags,
		                       category, sub_category, syndicator, provider,
		                       created_at, updated_at, version,
		                       usage_count, success_count, success_rate,
		                       upvotes, downvotes, vote_score,
		                       embedding, edge_cases, example_tickets)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0, 0, 1.0, 0, 0, 0, ?, ?, ?)`,
		id, a.Title, a.Problem, a.Solution,
		marshalJSON(a.Steps), marshalJSON(a.Tags),
		a.Category, a.SubCategory, a.Syndicator, a.Provider,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
		marshalJSON(a.Embedding), marshalJSON(a.EdgeCases), marshalJSON(a.ExampleTickets))
	if err != nil {
		return 0, fmt.Errorf("insert article: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// GetArticle returns an article with its full version history.
func (s *Store) GetArticle(ctx context.Context, id int) (*model.Article, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+articleCols+` FROM articles WHERE id = ?`, id)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("article %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	history, err := s.versionHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	a.VersionHistory = history
	return a, nil
}

// ListArticles returns articles without their version history, newest id
// last for stable output.
func (s *Store) ListArticles(ctx context.Context, p ListArticlesParams) ([]*model.Article, error) {
	query := `SELECT ` + articleCols + ` FROM articles`
	var where []string
	var args []interface{}

	if p.Category != "" {
		where = append(where, "category = ?")
		args = append(args, p.Category)
	}
	if p.SubCategory != "" {
		where = append(where, "sub_category = ?")
		args = append(args, p.SubCategory)
	}
	if p.Tag != "" {
		where = append(where, "tags LIKE ?")
		args = append(args, `%"`+p.Tag+`"%`)
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

	var articles []*model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// UpdateArticle snapshots the current state, then applies the field
// updates, increments the version, and refreshes updated_at — all in one
// transaction, so a reader never sees a bumped version without its
// snapshot.
func (s *Store) UpdateArticle(ctx context.Context, id int, u model.ArticleUpdate, changeReason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	a, err := getArticleTx(ctx, tx, id)
	if err != nil {
		return err
	}

	// Snapshot timestamp is when the captured state came to be.
	if err := insertSnapshot(ctx, tx, a, changeReason, a.UpdatedAt); err != nil {
		return err
	}

	applyUpdate(a, u)
	a.Version++
	a.UpdatedAt = time.Now().UTC()

	if err := writeArticleContent(ctx, tx, a); err != nil {
		return err
	}
	return tx.Commit()
}

// RollbackArticle restores title/problem/solution/steps/tags from the
// snapshot with the given version, using the same snapshot-then-apply
// sequence as UpdateArticle. History only grows.
func (s *Store) RollbackArticle(ctx context.Context, id, targetVersion int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	a, err := getArticleTx(ctx, tx, id)
	if err != nil {
		return err
	}

	var stateJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT previous_state FROM article_versions WHERE article_id = ? AND version = ?`,
		id, targetVersion).Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("article %d version %d: %w", id, targetVersion, ErrNotFound)
	}
	if err != nil {
		return err
	}

	var prev model.PreviousState
	if err := json.Unmarshal([]byte(stateJSON), &prev); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	now := time.Now().UTC()
	reason := fmt.Sprintf("rolled back to version %d", targetVersion)
	if err := insertSnapshot(ctx, tx, a, reason, a.UpdatedAt); err != nil {
		return err
	}

	a.Title = prev.Title
	a.Problem = prev.Problem
	a.Solution = prev.Solution
	a.Steps = prev.Steps
	a.Tags = prev.Tags
	a.Version++
	a.UpdatedAt = now

	if err := writeArticleContent(ctx, tx, a); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteArticle permanently removes an article and its version history.
func (s *Store) DeleteArticle(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM articles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("article %d: %w", id, ErrNotFound)
	}
	return nil
}

// RecordUsage bumps the usage counter (and the success counter when the
// article worked) and recomputes success_rate, atomically.
func (s *Store) RecordUsage(ctx context.Context, id int, success bool) error {
	inc := 0
	if success {
		inc = 1
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles
		 SET usage_count = usage_count + 1,
		     success_count = success_count + ?,
		     success_rate = CAST(success_count + ? AS REAL) / (usage_count + 1),
		     last_used = ?
		 WHERE id = ?`,
		inc, inc, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("article %d: %w", id, ErrNotFound)
	}
	return nil
}

// VoteArticle records an up or down vote and recomputes the vote score.
func (s *Store) VoteArticle(ctx context.Context, id int, direction string) error {
	var query string
	switch direction {
	case "up":
		query = `UPDATE articles SET upvotes = upvotes + 1, vote_score = upvotes + 1 - downvotes WHERE id = ?`
	case "down":
		query = `UPDATE articles SET downvotes = downvotes + 1, vote_score = upvotes - downvotes - 1 WHERE id = ?`
	default:
		return fmt.Errorf("%w: vote direction %q (use up or down)", ErrValidation, direction)
	}

	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("article %d: %w", id, ErrNotFound)
	}
	return nil
}

// AddEdgeCase appends an edge case annotation. No version snapshot:
// annotations are additive, not content rewrites.
func (s *Store) AddEdgeCase(ctx context.Context, id int, ec model.EdgeCase) error {
	if ec.ReportedBy == "" {
		ec.ReportedBy = "Unknown"
	}
	if ec.Date.IsZero() {
		ec.Date = time.Now().UTC()
	}
	return s.appendAnnotation(ctx, id, "edge_cases", func(a *model.Article) {
		a.EdgeCases = append(a.EdgeCases, ec)
	})
}

// AddExampleTicket appends an example ticket annotation.
func (s *Store) AddExampleTicket(ctx context.Context, id int, et model.ExampleTicket) error {
	if et.Date.IsZero() {
		et.Date = time.Now().UTC()
	}
	return s.appendAnnotation(ctx, id, "example_tickets", func(a *model.Article) {
		a.ExampleTickets = append(a.ExampleTickets, et)
	})
}

func (s *Store) appendAnnotation(ctx context.Context, id int, column string, apply func(*model.Article)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	a, err := getArticleTx(ctx, tx, id)
	if err != nil {
		return err
	}
	apply(a)

	var value interface{}
	if column == "edge_cases" {
		value = marshalJSON(a.EdgeCases)
	} else {
		value = marshalJSON(a.ExampleTickets)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE articles SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		value, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// VersionHistory returns an article's snapshots, oldest first.
func (s *Store) VersionHistory(ctx context.Context, id int) ([]model.VersionSnapshot, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM articles WHERE id = ?`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("article %d: %w", id, ErrNotFound)
	}
	return s.versionHistory(ctx, id)
}

// UpdateEmbedding stores a freshly generated embedding vector. Not a
// content change: no snapshot, updated_at untouched.
func (s *Store) UpdateEmbedding(ctx context.Context, id int, vec []float32) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET embedding = ? WHERE id = ?`, marshalJSON(vec), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("article %d: %w", id, ErrNotFound)
	}
	return nil
}

// --- internals ---

const articleCols = `id, title, problem, solution, steps, tags,
	category, sub_category, syndicator, provider,
	created_at, updated_at, last_used, version,
	usage_count, success_count, success_rate,
	upvotes, downvotes, vote_score,
	embedding, edge_cases, example_tickets`

func (s *Store) versionHistory(ctx context.Context, id int) ([]model.VersionSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version, timestamp, change_reason, previous_state
		 FROM article_versions WHERE article_id = ? ORDER BY version`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []model.VersionSnapshot
	for rows.Next() {
		var snap model.VersionSnapshot
		var ts, state string
		if err := rows.Scan(&snap.Version, &ts, &snap.ChangeReason, &state); err != nil {
			return nil, err
		}
		snap.Timestamp, _ = time.Parse(time.RFC3339, ts)
		if err := json.Unmarshal([]byte(state), &snap.PreviousState); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		history = append(history, snap)
	}
	return history, rows.Err()
}

func getArticleTx(ctx context.Context, tx *sql.Tx, id int) (*model.Article, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+articleCols+` FROM articles WHERE id = ?`, id)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("article %d: %w", id, ErrNotFound)
	}
	return a, err
}

// insertSnapshot records the article's current state under its current
// version number. Caller bumps the version afterwards in the same tx.
func insertSnapshot(ctx context.Context, tx *sql.Tx, a *model.Article, reason string, ts time.Time) error {
	state := model.PreviousState{
		Title:       a.Title,
		Problem:     a.Problem,
		Solution:    a.Solution,
		Steps:       a.Steps,
		Tags:        a.Tags,
		SuccessRate: a.SuccessRate,
		UsageCount:  a.UsageCount,
	}
	b, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO article_versions (article_id, version, timestamp, change_reason, previous_state)
		 VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Version, ts.Format(time.RFC3339), reason, string(b))
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func applyUpdate(a *model.Article, u model.ArticleUpdate) {
	if u.Title != nil {
		a.Title = *u.Title
	}
	if u.Problem != nil {
		a.Problem = *u.Problem
	}
	if u.Solution != nil {
		a.Solution = *u.Solution
	}
	if u.Steps != nil {
		a.Steps = *u.Steps
	}
	if u.Tags != nil {
		a.Tags = *u.Tags
	}
	if u.Category != nil {
		a.Category = *u.Category
	}
	if u.SubCategory != nil {
		a.SubCategory = *u.SubCategory
	}
	if u.Syndicator != nil {
		a.Syndicator = *u.Syndicator
	}
	if u.Provider != nil {
		a.Provider = *u.Provider
	}
}

func writeArticleContent(ctx context.Context, tx *sql.Tx, a *model.Article) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE articles
		 SET title = ?, problem = ?, solution = ?, steps = ?, tags = ?,
		     category = ?, sub_category = ?, syndicator = ?, provider = ?,
		     version = ?, updated_at = ?
		 WHERE id = ?`,
		a.Title, a.Problem, a.Solution, marshalJSON(a.Steps), marshalJSON(a.Tags),
		a.Category, a.SubCategory, a.Syndicator, a.Provider,
		a.Version, a.UpdatedAt.Format(time.RFC3339), a.ID)
	if err != nil {
		return fmt.Errorf("update article: %w", err)
	}
	return nil
}

func scanArticle(row scanner) (*model.Article, error) {
	var a model.Article
	var steps, tags, lastUsed, embedding, edgeCases, examples sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&a.ID, &a.Title, &a.Problem, &a.Solution, &steps, &tags,
		&a.Category, &a.SubCategory, &a.Syndicator, &a.Provider,
		&createdAt, &updatedAt, &lastUsed, &a.Version,
		&a.UsageCount, &a.SuccessCount, &a.SuccessRate,
		&a.Upvotes, &a.Downvotes, &a.VoteScore,
		&embedding, &edgeCases, &examples,
	)
	if err != nil {
		return nil, err
	}

	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if lastUsed.Valid {
		t, _ := time.Parse(time.RFC3339, lastUsed.String)
		a.LastUsed = &t
	}
	if steps.Valid {
		json.Unmarshal([]byte(steps.String), &a.Steps)
	}
	if tags.Valid {
		json.Unmarshal([]byte(tags.String), &a.Tags)
	}
	if embedding.Valid {
		json.Unmarshal([]byte(embedding.String), &a.Embedding)
	}
	if edgeCases.Valid {
		json.Unmarshal([]byte(edgeCases.String), &a.EdgeCases)
	}
	if examples.Valid {
		json.Unmarshal([]byte(examples.String), &a.ExampleTickets)
	}

	return &a, nil
}

func marshalJSON(v interface{}) interface{} {
	switch val := v.(type) {
	case []string:
		if len(val) == 0 {
			return nil
		}
	case []float32:
		if len(val) == 0 {
			return nil
		}
	case []model.EdgeCase:
		if len(val) == 0 {
			return nil
		}
	case []model.ExampleTicket:
		if len(val) == 0 {
			return nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(b)
}
