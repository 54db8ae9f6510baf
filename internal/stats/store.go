// Package stats persists per-cycle detection telemetry in SQLite. Only
// outcome metadata is stored, never message or response text.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"webchat/internal/domain"
)

// Record is one finished chat cycle.
type Record struct {
	ID          string
	Site        string
	Kind        domain.ResultKind
	Elapsed     time.Duration
	Polls       int
	StableTicks int
	TextLength  int
	CreatedAt   time.Time
}

// FromResult builds a record for a detection result.
func FromResult(site string, res domain.Result) Record {
	return Record{
		Site:        site,
		Kind:        res.Kind,
		Elapsed:     res.Elapsed,
		Polls:       res.Polls,
		StableTicks: res.StableTicks,
		TextLength:  len([]rune(res.Text)),
	}
}

// KindSummary aggregates records sharing an outcome.
type KindSummary struct {
	Kind       domain.ResultKind
	Count      int
	AvgElapsed time.Duration
	AvgPolls   float64
}

// Summary aggregates all records for a site, or all sites when empty.
type Summary struct {
	Total  int
	ByKind []KindSummary
	Since  time.Time
}

// Rate returns the share of records with the given kind.
func (s Summary) Rate(kind domain.ResultKind) float64 {
	if s.Total == 0 {
		return 0
	}
	for _, k := range s.ByKind {
		if k.Kind == kind {
			return float64(k.Count) / float64(s.Total)
		}
	}
	return 0
}

// SQLiteStore implements telemetry storage on modernc.org/sqlite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// DSN returns the modernc.org/sqlite data source name for dbPath with WAL
// journaling and a 5s busy timeout applied on every connection.
func DSN(dbPath string) string {
	return dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cycles (
		id            TEXT PRIMARY KEY,
		site          TEXT NOT NULL,
		kind          TEXT NOT NULL,
		elapsed_ms    INTEGER NOT NULL,
		polls         INTEGER NOT NULL,
		stable_ticks  INTEGER NOT NULL,
		text_length   INTEGER NOT NULL,
		created_at    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cycles_site ON cycles(site, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save stores a record, filling in ID and CreatedAt when unset.
func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cycles (id, site, kind, elapsed_ms, polls, stable_ticks, text_length, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Site, string(rec.Kind), rec.Elapsed.Milliseconds(), rec.Polls, rec.StableTicks,
		rec.TextLength, rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save cycle: %w", err)
	}
	return nil
}

// Recent returns the newest records first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, site, kind, elapsed_ms, polls, stable_ticks, text_length, created_at
		 FROM cycles ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r         Record
			kind      string
			elapsedMs int64
			created   int64
		)
		if err := rows.Scan(&r.ID, &r.Site, &kind, &elapsedMs, &r.Polls, &r.StableTicks, &r.TextLength, &created); err != nil {
			return nil, err
		}
		r.Kind = domain.ResultKind(kind)
		r.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		r.CreatedAt = time.UnixMilli(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Summary aggregates outcomes per kind.
func (s *SQLiteStore) Summary(ctx context.Context, site string) (Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, COUNT(*), AVG(elapsed_ms), AVG(polls), MIN(created_at)
		 FROM cycles WHERE (? = '' OR site = ?)
		 GROUP BY kind ORDER BY COUNT(*) DESC, kind`, site, site)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()

	var sum Summary
	var first int64
	for rows.Next() {
		var (
			k       KindSummary
			kind    string
			avgMs   float64
			minTime int64
		)
		if err := rows.Scan(&kind, &k.Count, &avgMs, &k.AvgPolls, &minTime); err != nil {
			return Summary{}, err
		}
		k.Kind = domain.ResultKind(kind)
		k.AvgElapsed = time.Duration(avgMs * float64(time.Millisecond))
		sum.Total += k.Count
		sum.ByKind = append(sum.ByKind, k)
		if first == 0 || minTime < first {
			first = minTime
		}
	}
	if first != 0 {
		sum.Since = time.UnixMilli(first)
	}
	return sum, rows.Err()
}

// Prune deletes records older than the given age.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM cycles WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("pruned telemetry", "rows", n)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
