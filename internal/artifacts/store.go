package artifacts

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/loqalabs/akira/internal/config"
	_ "modernc.org/sqlite"
)

// Store is the ledger of generated audio files awaiting their single download.
// In ephemeral mode entries live in memory; in sqlite mode they survive restarts
// so orphans from a previous run can still be swept.
type Store struct {
	db    *sql.DB
	cfg   config.ArtifactsConfig
	log   *slog.Logger
	clock func() time.Time

	mu  sync.Mutex
	mem map[string]time.Time
}

// Open initializes the ledger according to config.
func Open(ctx context.Context, cfg config.ArtifactsConfig, log *slog.Logger) (*Store, error) {
	s := &Store{cfg: cfg, log: log, clock: time.Now}
	if cfg.Mode != "sqlite" {
		s.mem = make(map[string]time.Time)
		return s, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s.db = db

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS artifacts (
    name TEXT PRIMARY KEY,
    created_unix INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_artifacts_created ON artifacts(created_unix);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Register records a freshly written file.
func (s *Store) Register(ctx context.Context, name string) error {
	now := s.clock().UTC()
	if s.db == nil {
		s.mu.Lock()
		s.mem[name] = now
		s.mu.Unlock()
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts(name, created_unix) VALUES(?, ?)
		 ON CONFLICT(name) DO UPDATE SET created_unix=excluded.created_unix`,
		name, now.UnixNano())
	return err
}

// Claim removes name from the ledger. Exactly one caller observes true for a
// registered name; every later caller gets false.
func (s *Store) Claim(ctx context.Context, name string) (bool, error) {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.mem[name]; !ok {
			return false, nil
		}
		delete(s.mem, name)
		return true, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE name = ?`, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Adopt records a file found on disk with its original creation time. An
// entry that already exists keeps its time.
func (s *Store) Adopt(ctx context.Context, name string, created time.Time) error {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.mem[name]; !ok {
			s.mem[name] = created.UTC()
		}
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts(name, created_unix) VALUES(?, ?) ON CONFLICT(name) DO NOTHING`,
		name, created.UTC().UnixNano())
	return err
}

// Expired lists names registered before cutoff.
func (s *Store) Expired(ctx context.Context, cutoff time.Time) ([]string, error) {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		var names []string
		for name, created := range s.mem {
			if created.Before(cutoff) {
				names = append(names, name)
			}
		}
		return names, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM artifacts WHERE created_unix < ? ORDER BY created_unix ASC`, cutoff.UTC().UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Len reports how many files are awaiting download.
func (s *Store) Len(ctx context.Context) (int, error) {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.mem), nil
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artifacts`).Scan(&n)
	return n, err
}
