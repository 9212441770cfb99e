package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"
)

// CacheCall memoizes an expensive call keyed by its input text. On a hit
// within the TTL the stored result is returned without invoking fn; on a
// miss, fn runs and its result is stored with a fresh expiry. A failing
// fn is never cached, so the next call retries. Values are opaque JSON.
func (s *Store) CacheCall(ctx context.Context, input string, fn func() (string, error)) (string, error) {
	key := cacheKey(input)
	now := time.Now().UTC()

	var value, expiresAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM query_cache WHERE key = ?`, key).
		Scan(&value, &expiresAt)
	switch {
	case err == nil:
		exp, perr := time.Parse(time.RFC3339, expiresAt)
		if perr == nil && now.Before(exp) {
			return value, nil
		}
		// Expired; drop it and fall through to recompute.
		s.db.ExecContext(ctx, `DELETE FROM query_cache WHERE key = ?`, key)
	case errors.Is(err, sql.ErrNoRows):
		// miss
	default:
		return "", err
	}

	result, err := fn()
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO query_cache (key, value, created_at, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value,
		     created_at = excluded.created_at, expires_at = excluded.expires_at`,
		key, result, now.Format(time.RFC3339),
		now.Add(s.cacheTTL).Format(time.RFC3339))
	if err != nil {
		return "", err
	}
	return result, nil
}

// PruneCache removes expired cache rows. Callers may run it on a timer;
// CacheCall also drops expired rows lazily.
func (s *Store) PruneCache(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM query_cache WHERE expires_at <= ?`,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func cacheKey(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
