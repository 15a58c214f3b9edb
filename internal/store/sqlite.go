package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/randalmurphal/claimgraph/pkg/claimgraph"
)

// SQLite is a Store backed by a SQLite database file.
type SQLite struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLite opens path, enables WAL and applies pending migrations.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	s, err := openSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := s.MigrateUp(); err != nil {
		s.db.Close()
		return nil, err
	}
	return s, nil
}

// OpenSQLiteNoMigrate opens path without touching the schema. The migrate
// command uses it to step the schema by hand.
func OpenSQLiteNoMigrate(ctx context.Context, path string) (*SQLite, error) {
	return openSQLite(ctx, path)
}

func openSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", "PRAGMA foreign_keys=ON"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return &SQLite{db: db}, nil
}

func nowText() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// SaveRecord implements Store.
func (s *SQLite) SaveRecord(ctx context.Context, rec claimgraph.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	now := nowText()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fhir_resources (resource_id, resource_type, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(resource_id) DO UPDATE SET
			resource_type = excluded.resource_type,
			data = excluded.data,
			updated_at = excluded.updated_at
	`, rec.ID, rec.Type, string(rec.Data), now, now)
	if err != nil {
		return fmt.Errorf("save record %s: %w", rec.ID, err)
	}
	return nil
}

// Records implements claimgraph.RecordSource. Results follow the order of
// ids; unknown IDs are skipped.
func (s *SQLite) Records(ctx context.Context, ids []string) ([]claimgraph.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT resource_id, resource_type, data FROM fhir_resources WHERE resource_id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	found := make(map[string]claimgraph.Record, len(ids))
	for rows.Next() {
		var rec claimgraph.Record
		var data string
		if err := rows.Scan(&rec.ID, &rec.Type, &data); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Data = json.RawMessage(data)
		found[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	out := make([]claimgraph.Record, 0, len(found))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if rec, ok := found[id]; ok && !seen[id] {
			out = append(out, rec)
			seen[id] = true
		}
	}
	return out, nil
}

// SaveAnalysis implements Store.
func (s *SQLite) SaveAnalysis(ctx context.Context, a *Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	cols := make([]string, 0, 4)
	for _, v := range []any{a.ResourceIDs, a.Extracted, a.Coded, a.Audit} {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode analysis: %w", err)
		}
		cols = append(cols, string(data))
	}

	created := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_results
			(run_id, resource_ids, extracted_data, coded_data, audit_result, retry_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.RunID, cols[0], cols[1], cols[2], cols[3], a.RetryCount, created.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	a.ID = id
	a.CreatedAt = created
	return nil
}

// LatestAnalysis implements Store.
func (s *SQLite) LatestAnalysis(ctx context.Context) (*Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var (
		a                                    Analysis
		ids, extracted, coded, audit, created string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, resource_ids, extracted_data, coded_data, audit_result, retry_count, created_at
		FROM analysis_results
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&a.ID, &a.RunID, &ids, &extracted, &coded, &audit, &a.RetryCount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load analysis: %w", err)
	}

	for _, col := range []struct {
		raw string
		dst any
	}{
		{ids, &a.ResourceIDs},
		{extracted, &a.Extracted},
		{coded, &a.Coded},
		{audit, &a.Audit},
	} {
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return nil, fmt.Errorf("decode analysis %d: %w", a.ID, err)
		}
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("decode analysis %d: %w", a.ID, err)
	}
	return &a, nil
}

// Close implements Store. It is safe to call more than once.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
