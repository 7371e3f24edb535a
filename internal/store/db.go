package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"cabinet/api/internal/tenant"
)

// DefaultTimeout bounds every single query issued by the store.
const DefaultTimeout = 5 * time.Second

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidCursor = errors.New("invalid cursor")
	ErrTagLimit      = errors.New("tag limit reached")
	ErrAlreadyUsed   = errors.New("invitation already used")
)

// ConflictError reports a unique constraint violation.
type ConflictError struct {
	Constraint string
}

func (e *ConflictError) Error() string {
	return "unique violation on " + e.Constraint
}

func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func get(ctx context.Context, q querier, dest any, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	err := sqlscan.Get(ctx, q, dest, query, args...)
	if sqlscan.NotFound(err) {
		return ErrNotFound
	}
	return mapPgError(err)
}

func selectRows(ctx context.Context, q querier, dest any, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	return sqlscan.Select(ctx, q, dest, query, args...)
}

func exec(ctx context.Context, q querier, query string, args ...any) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapPgError(err)
	}
	return res.RowsAffected()
}

// execOne is exec for statements that must touch exactly one row.
func execOne(ctx context.Context, q querier, query string, args ...any) error {
	n, err := exec(ctx, q, query, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &ConflictError{Constraint: pgErr.ConstraintName}
	}
	return err
}

func requireScope(scope tenant.Scope) error {
	if !scope.Valid() {
		return tenant.ErrNoTenant
	}
	return nil
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// args collects positional parameters while a query is assembled.
type args []any

func (a *args) add(v any) string {
	*a = append(*a, v)
	return fmt.Sprintf("$%d", len(*a))
}

// Change sets one column in an update. A nil Value clears the column.
type Change struct {
	Column string
	Value  any
}

type Changes []Change

func (c Changes) Set(column string, value any) Changes {
	return append(c, Change{Column: column, Value: value})
}

// setClause renders "col = $n, ..." for the allowed columns only.
func (c Changes) setClause(allowed map[string]bool, a *args) (string, error) {
	parts := make([]string, 0, len(c)+1)
	for _, ch := range c {
		if !allowed[ch.Column] {
			return "", fmt.Errorf("column %q cannot be updated", ch.Column)
		}
		parts = append(parts, ch.Column+" = "+a.add(ch.Value))
	}
	return strings.Join(parts, ", "), nil
}
