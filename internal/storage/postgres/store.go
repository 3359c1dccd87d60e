// Package postgres provides the Postgres-backed bookmark and collection repositories.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/bookmarks/internal/bookmark"
	"github.com/JakeFAU/bookmarks/internal/metrics"
)

//go:embed schema.sql
var schemaSQL string

// Postgres error codes the repositories translate into domain outcomes.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeInvalidText         = "22P02"
)

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool the store needs; pgxmock satisfies it in tests.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store implements bookmark.Store on Postgres.
type Store struct {
	pool pool
}

var _ bookmark.Store = (*Store)(nil)

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// EnsureSchema creates the tables and indexes when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// observe records the outcome of a repository call.
func observe(op string, start time.Time, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, bookmark.ErrNotFound):
		result = "not_found"
	case errors.Is(err, bookmark.ErrDuplicate):
		result = "duplicate"
	default:
		result = "error"
	}
	metrics.ObserveStoreOp(op, result, time.Since(start))
}

// translate maps driver errors onto the domain sentinels.
func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return bookmark.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, bookmark.ErrDuplicate)
		case codeForeignKeyViolation:
			return fmt.Errorf("collection reference: %w", bookmark.ErrValidation)
		case codeInvalidText:
			// Identifiers that are not UUIDs cannot name a stored row.
			return bookmark.ErrNotFound
		}
	}
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// searchDocument flattens the searchable fields into the space-separated
// tokens fed to to_tsvector, so indexed tokens match bookmark.SearchTerms.
func searchDocument(b bookmark.Bookmark) string {
	parts := make([]string, 0, len(b.Tags)+2)
	parts = append(parts, b.Title, b.Description)
	parts = append(parts, b.Tags...)
	return strings.Join(bookmark.SearchTerms(strings.Join(parts, " ")), " ")
}

// tsQuery joins sanitized terms into an OR query.
func tsQuery(terms []string) string {
	return strings.Join(terms, " | ")
}
