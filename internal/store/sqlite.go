package store

import (
	"database/sql"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// DefaultSearchLogCap bounds the search log; the oldest entries are
// dropped first once over capacity.
const DefaultSearchLogCap = 1000

// DefaultCacheTTL is how long cached query expansions stay valid.
const DefaultCacheTTL = 12 * time.Hour

// Store holds every durable KB collection in one SQLite file: articles
// with embedded version history, feedback items, the append-only audit
// log, the bounded search log, and the query cache. SQLite serializes
// writers, so read-modify-write mutations on one article cannot
// interleave.
type Store struct {
	db           *sql.DB
	entropy      io.Reader
	searchLogCap int
	cacheTTL     time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithSearchLogCap overrides the search log capacity.
func WithSearchLogCap(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.searchLogCap = n
		}
	}
}

// WithCacheTTL overrides the query cache TTL.
func WithCacheTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.cacheTTL = d
		}
	}
}

// New opens or creates the KB database at the given path.
func New(dbPath string, opts ...Option) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	// _txlock=immediate makes every transaction take the write lock up
	// front, so concurrent read-modify-write mutations queue on
	// busy_timeout instead of failing mid-transaction on the lock
	// upgrade.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{
		db: db,
		// Monotonic entropy: ids generated in one process sort in
		// insertion order even within the same millisecond.
		entropy:      ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		searchLogCap: DefaultSearchLogCap,
		cacheTTL:     DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) newULID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id              INTEGER PRIMARY KEY,
		title           TEXT NOT NULL,
		problem         TEXT NOT NULL DEFAULT '',
		solution        TEXT NOT NULL DEFAULT '',
		steps           TEXT,
		tags            TEXT,
		category        TEXT NOT NULL DEFAULT '',
		sub_category    TEXT NOT NULL DEFAULT '',
		syndicator      TEXT NOT NULL DEFAULT '',
		provider        TEXT NOT NULL DEFAULT '',
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL,
		last_used       TEXT,
		version         INTEGER NOT NULL DEFAULT 1,
		usage_count     INTEGER NOT NULL DEFAULT 0,
		success_count   INTEGER NOT NULL DEFAULT 0,
		success_rate    REAL NOT NULL DEFAULT 1.0,
		upvotes         INTEGER NOT NULL DEFAULT 0,
		downvotes       INTEGER NOT NULL DEFAULT 0,
		vote_score      INTEGER NOT NULL DEFAULT 0,
		embedding       TEXT,
		edge_cases      TEXT,
		example_tickets TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_articles_category ON articles(category, sub_category);
	CREATE INDEX IF NOT EXISTS idx_articles_updated ON articles(updated_at DESC);

	CREATE TABLE IF NOT EXISTS article_versions (
		article_id     INTEGER NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
		version        INTEGER NOT NULL,
		timestamp      TEXT NOT NULL,
		change_reason  TEXT NOT NULL DEFAULT '',
		previous_state TEXT NOT NULL,
		PRIMARY KEY (article_id, version)
	);

	CREATE TABLE IF NOT EXISTS feedback_items (
		id                 INTEGER PRIMARY KEY,
		timestamp          TEXT NOT NULL,
		ticket_data        TEXT NOT NULL,
		matched_article_id INTEGER,
		resolution_worked  INTEGER NOT NULL DEFAULT 0,
		agent_feedback     TEXT NOT NULL,
		status             TEXT NOT NULL DEFAULT 'pending',
		audit_notes        TEXT NOT NULL DEFAULT '',
		recommendation     TEXT,
		recommendation_at  TEXT,
		reviewed_at        TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_status ON feedback_items(status);
	CREATE INDEX IF NOT EXISTS idx_feedback_article ON feedback_items(matched_article_id);

	CREATE TABLE IF NOT EXISTS audit_log (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp   TEXT NOT NULL,
		action      TEXT NOT NULL,
		article_id  INTEGER,
		user        TEXT NOT NULL DEFAULT '',
		feedback_id INTEGER,
		details     TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_article ON audit_log(article_id);
	CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_log(user);

	CREATE TABLE IF NOT EXISTS search_log (
		id             TEXT PRIMARY KEY,
		query          TEXT NOT NULL,
		query_norm     TEXT NOT NULL,
		timestamp      TEXT NOT NULL,
		results_found  INTEGER NOT NULL,
		article_id     INTEGER,
		result_count   INTEGER NOT NULL DEFAULT 0,
		classification TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_search_log_ts ON search_log(timestamp);
	CREATE INDEX IF NOT EXISTS idx_search_log_norm ON search_log(query_norm);

	CREATE TABLE IF NOT EXISTS query_cache (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}
