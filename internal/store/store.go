package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"stock-ledger/internal/ledger"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore implements ledger.Store on PostgreSQL
type PostgresStore struct {
	repo
	db *sqlx.DB
}

// NewPostgresStore creates a new database store
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewPostgresStoreFromDB(db), nil
}

// NewPostgresStoreFromDB wraps an existing connection pool
func NewPostgresStoreFromDB(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{repo: repo{q: db}, db: db}
}

// Migrate creates the ledger tables if they do not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetDB returns the underlying database connection
func (s *PostgresStore) GetDB() *sqlx.DB {
	return s.db
}

// WithTx runs fn in a transaction. Items loaded through tx are locked with
// FOR UPDATE until commit.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx ledger.Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{repo: repo{q: tx, lockRows: true}}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ReadSnapshot runs fn in a read-only REPEATABLE READ transaction so every
// query sees the same committed state.
func (s *PostgresStore) ReadSnapshot(ctx context.Context, fn func(snap ledger.Store) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{repo: repo{q: tx}}); err != nil {
		return err
	}
	return tx.Commit()
}

// IsEventProcessed checks if an event was already handled
func (s *PostgresStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed records a handled event
func (s *PostgresStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}

// pgTx is the transactional view handed to WithTx and ReadSnapshot callbacks.
// Nested calls join the enclosing transaction.
type pgTx struct {
	repo
}

func (t *pgTx) WithTx(_ context.Context, fn func(tx ledger.Store) error) error {
	return fn(t)
}

func (t *pgTx) ReadSnapshot(_ context.Context, fn func(snap ledger.Store) error) error {
	return fn(t)
}

// repo holds the queries shared by the pool and transactions
type repo struct {
	q        sqlx.ExtContext
	lockRows bool
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
