package store

import (
	"context"

	"github.com/rcliao/support-kb/internal/model"
)

// ExportArticles returns every article with full version history,
// ordered by id.
func (s *Store) ExportArticles(ctx context.Context) ([]*model.Article, error) {
	articles, err := s.ListArticles(ctx, ListArticlesParams{})
	if err != nil {
		return nil, err
	}
	for _, a := range articles {
		history, err := s.versionHistory(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		a.VersionHistory = history
	}
	return articles, nil
}

// ImportArticles stores articles from an export as fresh entries. Ids,
// counters, and histories are reassigned; the export's content fields
// are what survives.
func (s *Store) ImportArticles(ctx context.Context, articles []*model.Article) (int, error) {
	imported := 0
	for _, a := range articles {
		copy := *a
		if _, err := s.CreateArticle(ctx, &copy); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
