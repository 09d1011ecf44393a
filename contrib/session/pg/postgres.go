// Package pg archives session records in PostgreSQL as JSONB documents.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sweetpotato0/ai-groupchat/config"
	errorskg "github.com/sweetpotato0/ai-groupchat/errors"
	"github.com/sweetpotato0/ai-groupchat/session"
)

const queryTimeout = 30 * time.Second

// Store implements session.Store on a PostgreSQL table.
type Store struct {
	db    *sql.DB
	table string
}

// NewStore connects to PostgreSQL and creates the archive table if needed.
func NewStore(ctx context.Context, cfg *config.PostgresConfig) (*Store, error) {
	if cfg == nil {
		def := config.Default().Store.Postgres
		cfg = &def
	}
	if err := config.ValidatePostgresConfig(*cfg); err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL configuration: %w", err)
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	s := NewStoreWithDB(db, cfg.Table)
	if err := s.CreateTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return s, nil
}

// NewStoreWithDB wraps an open database handle.
func NewStoreWithDB(db *sql.DB, table string) *Store {
	return &Store{db: db, table: pq.QuoteIdentifier(table)}
}

// CreateTable creates the archive table and its index.
func (s *Store) CreateTable(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id VARCHAR(255) PRIMARY KEY,
		state VARCHAR(32) NOT NULL,
		outcome VARCHAR(32) NOT NULL DEFAULT '',
		record JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s(updated_at);
	`, s.table, pq.QuoteIdentifier("idx_"+unquote(s.table)+"_updated_at"))
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Save upserts the record.
func (s *Store) Save(ctx context.Context, record *session.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("session record cannot be nil")
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	now := time.Now()
	created := record.CreatedAt
	if created.IsZero() {
		created = now
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := fmt.Sprintf(`
	INSERT INTO %s (id, state, outcome, record, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE SET
		state = EXCLUDED.state,
		outcome = EXCLUDED.outcome,
		record = EXCLUDED.record,
		updated_at = EXCLUDED.updated_at
	`, s.table)
	if _, err := s.db.ExecContext(ctx, query, record.ID, string(record.State), record.Outcome, string(raw), created, now); err != nil {
		return fmt.Errorf("failed to save session to PostgreSQL: %w", err)
	}
	return nil
}

// Load fetches the record with id.
func (s *Store) Load(ctx context.Context, id string) (*session.Record, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT record FROM %s WHERE id = $1`, s.table), id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, errorskg.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var rec session.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode session record: %w", err)
	}
	return &rec, nil
}

// Delete removes the record with id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table), id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// List returns archived ids, most recently updated first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT id FROM %s ORDER BY updated_at DESC`, s.table))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return ids, nil
}

// Count returns the number of archived records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

// Exists checks if a record is archived.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, s.table)
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check session existence: %w", err)
	}
	return ok, nil
}

// Close closes the PostgreSQL connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks if PostgreSQL connection is alive
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func unquote(ident string) string {
	if len(ident) >= 2 && ident[0] == '"' && ident[len(ident)-1] == '"' {
		return ident[1 : len(ident)-1]
	}
	return ident
}
