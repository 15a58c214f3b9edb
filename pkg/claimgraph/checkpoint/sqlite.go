package checkpoint

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationsTable tracks the snapshot schema version. It differs from the
// analysis store's table so both can share one database file.
const MigrationsTable = "checkpoint_migrations"

// SQLiteStore persists snapshots in a SQLite database.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// NewSQLiteStore opens path and brings the snapshot schema up to date.
// ":memory:" gives a throwaway store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}
	// One connection: ":memory:" databases are per-connection.
	db.SetMaxOpenConns(1)

	if err := prepare(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func prepare(db *sql.DB) error {
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load checkpoint migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return fmt.Errorf("checkpoint migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("checkpoint migrator: %w", err)
	}
	// m is not closed: that would close db.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate checkpoint schema: %w", err)
	}
	return nil
}

// read runs fn under the read lock unless the store is closed.
func (s *SQLiteStore) read(fn func() error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return fn()
}

func (s *SQLiteStore) write(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	return fn()
}

// Save implements Store. Saving an existing (runID, sequence) replaces it.
func (s *SQLiteStore) Save(runID string, sequence int, data []byte) error {
	return s.write(func() error {
		const q = `INSERT INTO run_snapshots (run_id, sequence, saved_at, size_bytes, data)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(run_id, sequence) DO UPDATE SET
				saved_at = excluded.saved_at,
				size_bytes = excluded.size_bytes,
				data = excluded.data`
		if _, err := s.db.Exec(q, runID, sequence, time.Now().UnixMilli(), len(data), data); err != nil {
			return fmt.Errorf("save snapshot %s#%d: %w", runID, sequence, err)
		}
		return nil
	})
}

// Load implements Store.
func (s *SQLiteStore) Load(runID string, sequence int) ([]byte, error) {
	var data []byte
	err := s.read(func() error {
		row := s.db.QueryRow(`SELECT data FROM run_snapshots WHERE run_id = ? AND sequence = ?`, runID, sequence)
		return notFound(row.Scan(&data))
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Latest implements Store.
func (s *SQLiteStore) Latest(runID string) ([]byte, Info, error) {
	var (
		data    []byte
		savedAt int64
		info    = Info{RunID: runID}
	)
	err := s.read(func() error {
		row := s.db.QueryRow(`SELECT sequence, saved_at, size_bytes, data FROM run_snapshots
			WHERE run_id = ? ORDER BY sequence DESC LIMIT 1`, runID)
		return notFound(row.Scan(&info.Sequence, &savedAt, &info.Size, &data))
	})
	if err != nil {
		return nil, Info{}, err
	}
	info.Timestamp = time.UnixMilli(savedAt)
	return data, info, nil
}

// List implements Store.
func (s *SQLiteStore) List(runID string) ([]Info, error) {
	infos := []Info{}
	err := s.read(func() error {
		rows, err := s.db.Query(`SELECT sequence, saved_at, size_bytes FROM run_snapshots
			WHERE run_id = ? ORDER BY sequence`, runID)
		if err != nil {
			return fmt.Errorf("list snapshots: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			info := Info{RunID: runID}
			var savedAt int64
			if err := rows.Scan(&info.Sequence, &savedAt, &info.Size); err != nil {
				return fmt.Errorf("scan snapshot info: %w", err)
			}
			info.Timestamp = time.UnixMilli(savedAt)
			infos = append(infos, info)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// DeleteRun implements Store.
func (s *SQLiteStore) DeleteRun(runID string) error {
	return s.write(func() error {
		if _, err := s.db.Exec(`DELETE FROM run_snapshots WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("delete snapshots for %s: %w", runID, err)
		}
		return nil
	})
}

// Close implements Store. Closing twice is a no-op.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	return nil
}
