// Package database wires the MetadataStore described in the specification:
// a transactional session factory over PostgreSQL, reached through sqlx and
// instrumented with OpenTelemetry exactly as the teacher's database layer
// does, plus the schema migration and uniqueness-violation translation the
// cache core's repository relies on.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// uniqueViolationCode is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolationCode = "23505"

// Querier is the subset of *sqlx.DB and *sqlx.Tx that ItemRepository needs.
// Operations take a Querier rather than a concrete *DB so they can run
// either standalone or inside a WithinTransaction callback.
type Querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// DB represents the PostgreSQL database connection backing the MetadataStore.
type DB struct {
	*sqlx.DB
}

// New creates a new PostgreSQL database connection.
func New(databaseURL string) (*DB, error) {
	db, err := otelsqlx.Connect("postgres", databaseURL,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Ping the database to verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Health checks the database connection health.
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}

// WithinTransaction is the spec's session_template: it begins a
// transaction, runs fn against it, commits on a nil return and rolls back
// otherwise (including on panic).
func (db *DB) WithinTransaction(ctx context.Context, fn func(q Querier) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(tx)
	return err
}

// CreateOrUpgradeSchema idempotently creates or migrates the MetadataStore
// schema using the embedded goose migrations. goose's own version table
// doubles as the spec's `version` marker.
func (db *DB) CreateOrUpgradeSchema() error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.Up(db.DB.DB, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// DropAllTables tears down the schema entirely (used when drop_data is
// configured). It runs goose down-to-zero so a subsequent
// CreateOrUpgradeSchema starts clean.
func (db *DB) DropAllTables() error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.DownTo(db.DB.DB, "migrations", 0); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	return nil
}

// IsUniquenessViolation reports whether err is a PostgreSQL unique
// constraint violation (SQLSTATE 23505).
func IsUniquenessViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolationCode
	}
	return false
}
