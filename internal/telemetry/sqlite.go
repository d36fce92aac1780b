package telemetry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go driver, registered as "sqlite"
)

// DateLayout is the day key used for daily aggregates.
const DateLayout = "2006-01-02"

// MaxZeroResults is how many zero-result queries the store keeps.
const MaxZeroResults = 100

// ZeroResult is a query that retrieved nothing.
type ZeroResult struct {
	Query     string    `json:"query"`
	Kind      QueryKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists metric increments.
type Store interface {
	Save(date string, kinds map[QueryKind]int64, terms map[string]int64,
		latencies map[LatencyBucket]int64, zeroResults []ZeroResult) error
	Close() error
}

const schema = `
CREATE TABLE IF NOT EXISTS query_kind_stats (
	date TEXT NOT NULL,
	kind TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, kind)
);

CREATE TABLE IF NOT EXISTS query_terms (
	term TEXT PRIMARY KEY,
	count INTEGER NOT NULL DEFAULT 0,
	last_seen TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);

CREATE TABLE IF NOT EXISTS zero_result_queries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	query TEXT NOT NULL,
	kind TEXT NOT NULL,
	timestamp TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS query_latency_stats (
	date TEXT NOT NULL,
	bucket TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, bucket)
);
`

// SQLiteStore keeps metrics in a SQLite database file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the metrics database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create telemetry directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry database: %w", err)
	}
	// Single writer avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores most DSN pragmas.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create telemetry schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Save adds the increments in one transaction.
func (s *SQLiteStore) Save(date string, kinds map[QueryKind]int64, terms map[string]int64,
	latencies map[LatencyBucket]int64, zeroResults []ZeroResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for kind, n := range kinds {
		if _, err := tx.Exec(`
			INSERT INTO query_kind_stats (date, kind, count) VALUES (?, ?, ?)
			ON CONFLICT(date, kind) DO UPDATE SET count = count + excluded.count`,
			date, string(kind), n); err != nil {
			return fmt.Errorf("upsert kind count: %w", err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for term, n := range terms {
		if _, err := tx.Exec(`
			INSERT INTO query_terms (term, count, last_seen) VALUES (?, ?, ?)
			ON CONFLICT(term) DO UPDATE SET count = count + excluded.count, last_seen = excluded.last_seen`,
			term, n, now); err != nil {
			return fmt.Errorf("upsert term count: %w", err)
		}
	}

	for bucket, n := range latencies {
		if _, err := tx.Exec(`
			INSERT INTO query_latency_stats (date, bucket, count) VALUES (?, ?, ?)
			ON CONFLICT(date, bucket) DO UPDATE SET count = count + excluded.count`,
			date, string(bucket), n); err != nil {
			return fmt.Errorf("upsert latency count: %w", err)
		}
	}

	if len(zeroResults) > 0 {
		for _, z := range zeroResults {
			if _, err := tx.Exec(`INSERT INTO zero_result_queries (query, kind, timestamp) VALUES (?, ?, ?)`,
				z.Query, string(z.Kind), z.Timestamp.UTC().Format(time.RFC3339Nano)); err != nil {
				return fmt.Errorf("insert zero-result query: %w", err)
			}
		}
		if _, err := tx.Exec(`
			DELETE FROM zero_result_queries
			WHERE id NOT IN (SELECT id FROM zero_result_queries ORDER BY id DESC LIMIT ?)`,
			MaxZeroResults); err != nil {
			return fmt.Errorf("trim zero-result queries: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// KindCounts sums query counts per kind for dates in [from, to].
func (s *SQLiteStore) KindCounts(from, to string) (map[QueryKind]int64, error) {
	rows, err := s.db.Query(`
		SELECT kind, SUM(count) FROM query_kind_stats
		WHERE date >= ? AND date <= ? GROUP BY kind`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query kind counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[QueryKind]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		counts[QueryKind(kind)] = n
	}
	return counts, rows.Err()
}

// LatencyCounts sums the latency histogram for dates in [from, to].
func (s *SQLiteStore) LatencyCounts(from, to string) (map[LatencyBucket]int64, error) {
	rows, err := s.db.Query(`
		SELECT bucket, SUM(count) FROM query_latency_stats
		WHERE date >= ? AND date <= ? GROUP BY bucket`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query latency counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[LatencyBucket]int64)
	for rows.Next() {
		var bucket string
		var n int64
		if err := rows.Scan(&bucket, &n); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		counts[LatencyBucket(bucket)] = n
	}
	return counts, rows.Err()
}

// TopTerms returns the most frequent query terms.
func (s *SQLiteStore) TopTerms(limit int) ([]TermCount, error) {
	rows, err := s.db.Query(`SELECT term, count FROM query_terms ORDER BY count DESC, term ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	terms := []TermCount{}
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		terms = append(terms, tc)
	}
	return terms, rows.Err()
}

// ZeroResultQueries returns recent zero-result queries, newest first.
func (s *SQLiteStore) ZeroResultQueries(limit int) ([]ZeroResult, error) {
	rows, err := s.db.Query(`SELECT query, kind, timestamp FROM zero_result_queries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query zero-result queries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []ZeroResult{}
	for rows.Next() {
		var z ZeroResult
		var kind, ts string
		if err := rows.Scan(&z.Query, &kind, &ts); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		z.Kind = QueryKind(kind)
		z.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, z)
	}
	return out, rows.Err()
}

// Report is the persisted view over a date range.
type Report struct {
	From                string                  `json:"from"`
	To                  string                  `json:"to"`
	KindCounts          map[QueryKind]int64     `json:"kind_counts"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []ZeroResult            `json:"zero_result_queries"`
}

// Total returns the number of queries in the report.
func (r *Report) Total() int64 {
	var n int64
	for _, v := range r.KindCounts {
		n += v
	}
	return n
}

// Report collects the persisted metrics for [from, to].
func (s *SQLiteStore) Report(from, to string, limit int) (*Report, error) {
	kinds, err := s.KindCounts(from, to)
	if err != nil {
		return nil, err
	}
	latencies, err := s.LatencyCounts(from, to)
	if err != nil {
		return nil, err
	}
	terms, err := s.TopTerms(limit)
	if err != nil {
		return nil, err
	}
	zero, err := s.ZeroResultQueries(limit)
	if err != nil {
		return nil, err
	}
	return &Report{
		From:                from,
		To:                  to,
		KindCounts:          kinds,
		LatencyDistribution: latencies,
		TopTerms:            terms,
		ZeroResultQueries:   zero,
	}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
