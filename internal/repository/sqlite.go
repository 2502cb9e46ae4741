package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Cypher-0-shift/JurAI/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS pending_submissions (
			id TEXT PRIMARY KEY,
			feature_id TEXT,
			context TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS outcomes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_key TEXT NOT NULL,
			feature_id TEXT,
			run_id TEXT,
			mode TEXT NOT NULL,
			reason TEXT NOT NULL,
			error TEXT,
			completed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_completed ON outcomes(completed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(feature_id, run_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}

	// Columns added after the first release.
	if err := s.ensureColumn("outcomes", "headline", `ALTER TABLE outcomes ADD COLUMN headline TEXT`); err != nil {
		return err
	}
	if err := s.ensureColumn("outcomes", "entries", `ALTER TABLE outcomes ADD COLUMN entries INTEGER NOT NULL DEFAULT 0`); err != nil {
		return err
	}

	return nil
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SavePending caches p as the only pending submission.
func (s *SQLiteStore) SavePending(ctx context.Context, p *domain.PendingSubmission) error {
	data, err := json.Marshal(p.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal submission context: %w", err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_submissions`); err != nil {
		return fmt.Errorf("failed to clear pending submissions: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO pending_submissions (id, feature_id, context, created_at) VALUES (?, ?, ?, ?)`,
		p.ID, nullString(p.FeatureID), string(data), p.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert pending submission: %w", err)
	}

	return tx.Commit()
}

// LoadPending returns the cached submission.
func (s *SQLiteStore) LoadPending(ctx context.Context) (*domain.PendingSubmission, error) {
	var p domain.PendingSubmission
	var featureID sql.NullString
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, feature_id, context, created_at FROM pending_submissions ORDER BY created_at DESC LIMIT 1`).
		Scan(&p.ID, &featureID, &data, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoPending
	}
	if err != nil {
		return nil, err
	}

	p.FeatureID = featureID.String
	if err := json.Unmarshal([]byte(data), &p.Context); err != nil {
		return nil, fmt.Errorf("failed to decode submission context: %w", err)
	}
	return &p, nil
}

// DeletePending removes the submission with id.
func (s *SQLiteStore) DeletePending(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM pending_submissions WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// RecordOutcome archives a session outcome.
func (s *SQLiteStore) RecordOutcome(ctx context.Context, o *domain.Outcome) error {
	if o.CompletedAt.IsZero() {
		o.CompletedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes (session_key, feature_id, run_id, mode, reason, error, headline, entries, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.Key, nullString(o.FeatureID), nullString(o.RunID), string(o.Mode), string(o.Reason),
		nullString(o.Error), nullString(o.Headline), o.Entries, o.CompletedAt)
	return err
}

// ListOutcomes returns the most recent outcomes first.
func (s *SQLiteStore) ListOutcomes(ctx context.Context, limit int) ([]domain.Outcome, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT session_key, feature_id, run_id, mode, reason, error, headline, entries, completed_at
		 FROM outcomes ORDER BY completed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []domain.Outcome
	for rows.Next() {
		var o domain.Outcome
		var featureID, runID, errText, headline sql.NullString
		var mode, reason string
		if err := rows.Scan(&o.Key, &featureID, &runID, &mode, &reason, &errText, &headline, &o.Entries, &o.CompletedAt); err != nil {
			return nil, err
		}
		o.FeatureID = featureID.String
		o.RunID = runID.String
		o.Mode = domain.Mode(mode)
		o.Reason = domain.CompletionReason(reason)
		o.Error = errText.String
		o.Headline = headline.String
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
