// Package sqlbackend is the reference C12 backend: every operation is
// implemented in terms of ordinary database/sql calls, dispatched across
// three drivers (sqlite3, postgres via pgx's stdlib shim, mysql) by target
// type, per SPEC_FULL.md A4.
package sqlbackend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/mattn/go-sqlite3"    // registers "sqlite3"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/smeltsql/smelt/backend"
)

// Backend is a database/sql-backed implementation of backend.Backend.
type Backend struct {
	db      *sql.DB
	dialect backend.Dialect
}

// New opens a database/sql.DB using the driver implied by target.Type.
func New(target backend.Target) (*Backend, error) {
	driverName, dsn, dialect, err := resolve(target)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlbackend: open %s: %w", dialect, err)
	}
	return &Backend{db: db, dialect: dialect}, nil
}

func resolve(target backend.Target) (driverName, dsn string, dialect backend.Dialect, err error) {
	switch strings.ToLower(target.Type) {
	case "sqlite", "sqlite3":
		dsn = target.Database
		if target.ConnectURL != "" {
			dsn = target.ConnectURL
		}
		if dsn == "" {
			dsn = ":memory:"
		}
		return "sqlite3", dsn, backend.DialectSQLite, nil
	case "postgres", "postgresql":
		dsn = target.ConnectURL
		if dsn == "" {
			dsn = fmt.Sprintf("dbname=%s", target.Database)
		}
		return "pgx", dsn, backend.DialectPostgres, nil
	case "mysql":
		if target.ConnectURL != "" {
			return "mysql", target.ConnectURL, backend.DialectMySQL, nil
		}
		cfg := mysqldriver.NewConfig()
		cfg.DBName = target.Database
		cfg.Net = "tcp"
		return "mysql", cfg.FormatDSN(), backend.DialectMySQL, nil
	default:
		return "", "", "", fmt.Errorf("sqlbackend: unsupported target type %q", target.Type)
	}
}

func (b *Backend) Dialect() backend.Dialect { return b.dialect }

func (b *Backend) Capabilities() backend.Capabilities {
	switch b.dialect {
	case backend.DialectPostgres:
		return backend.Capabilities{SupportsQualify: true, SupportsCreateOrReplace: true, SupportsTransactionalDDL: true}
	case backend.DialectMySQL:
		return backend.Capabilities{SupportsQualify: false, SupportsCreateOrReplace: true, SupportsTransactionalDDL: false}
	default: // sqlite
		return backend.Capabilities{SupportsQualify: false, SupportsCreateOrReplace: false, SupportsTransactionalDDL: true}
	}
}

func (b *Backend) Close() error { return b.db.Close() }

// qualifiedName joins schema and name, except under sqlite, which has no
// real multi-schema support outside of ATTACH — the schema component is
// dropped there rather than producing an invalid "schema.table" reference.
func (b *Backend) qualifiedName(schema, name string) string {
	if b.dialect == backend.DialectSQLite || schema == "" {
		return name
	}
	return schema + "." + name
}

func (b *Backend) ExecuteSQL(ctx context.Context, query string) ([]backend.Batch, error) {
	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlbackend: execute: %w", err)
	}
	defer rows.Close()

	batch, err := scanBatch(rows)
	if err != nil {
		return nil, err
	}
	return []backend.Batch{batch}, nil
}

func scanBatch(rows *sql.Rows) (backend.Batch, error) {
	cols, err := rows.Columns()
	if err != nil {
		return backend.Batch{}, fmt.Errorf("sqlbackend: columns: %w", err)
	}

	batch := backend.Batch{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return backend.Batch{}, fmt.Errorf("sqlbackend: scan: %w", err)
		}
		row := make(backend.Row, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		batch.Rows = append(batch.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return backend.Batch{}, fmt.Errorf("sqlbackend: iterate rows: %w", err)
	}
	return batch, nil
}

func (b *Backend) exec(ctx context.Context, query string, args ...any) error {
	if _, err := b.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlbackend: %s: %w", query, err)
	}
	return nil
}

func (b *Backend) CreateTableAs(ctx context.Context, schema, name, sqlText string) error {
	target := b.qualifiedName(schema, name)
	return b.exec(ctx, fmt.Sprintf("CREATE TABLE %s AS %s", target, sqlText))
}

func (b *Backend) CreateViewAs(ctx context.Context, schema, name, sqlText string) error {
	target := b.qualifiedName(schema, name)
	return b.exec(ctx, fmt.Sprintf("CREATE VIEW %s AS %s", target, sqlText))
}

func (b *Backend) DropTableIfExists(ctx context.Context, schema, name string) error {
	return b.exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", b.qualifiedName(schema, name)))
}

func (b *Backend) DropViewIfExists(ctx context.Context, schema, name string) error {
	return b.exec(ctx, fmt.Sprintf("DROP VIEW IF EXISTS %s", b.qualifiedName(schema, name)))
}

func (b *Backend) GetRowCount(ctx context.Context, schema, name string) (int64, error) {
	row := b.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", b.qualifiedName(schema, name)))
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlbackend: row count: %w", err)
	}
	return n, nil
}

func (b *Backend) GetPreview(ctx context.Context, schema, name string, limit int) (backend.Batch, error) {
	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", b.qualifiedName(schema, name), limit)
	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return backend.Batch{}, fmt.Errorf("sqlbackend: preview: %w", err)
	}
	defer rows.Close()
	return scanBatch(rows)
}

func (b *Backend) TableExists(ctx context.Context, schema, name string) (bool, error) {
	var query string
	var args []any
	switch b.dialect {
	case backend.DialectSQLite:
		query = "SELECT 1 FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?"
		args = []any{name}
	default: // postgres, mysql: both expose information_schema.tables
		query = "SELECT 1 FROM information_schema.tables WHERE table_schema = ? AND table_name = ?"
		if b.dialect == backend.DialectPostgres {
			query = "SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2"
		}
		args = []any{schema, name}
	}
	row := b.db.QueryRowContext(ctx, query, args...)
	var one int
	switch err := row.Scan(&one); err {
	case nil:
		return true, nil
	case sql.ErrNoRows:
		return false, nil
	default:
		return false, fmt.Errorf("sqlbackend: table_exists: %w", err)
	}
}

func (b *Backend) EnsureSchema(ctx context.Context, schema string) error {
	switch b.dialect {
	case backend.DialectSQLite:
		return nil // no multi-schema support to ensure
	case backend.DialectMySQL:
		return b.exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", schema))
	default:
		return b.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema))
	}
}

func (b *Backend) DeletePartitions(ctx context.Context, schema, name string, p backend.Partition) error {
	if len(p.Values) == 0 {
		return nil
	}
	placeholders := make([]string, len(p.Values))
	args := make([]any, len(p.Values))
	for i, v := range p.Values {
		placeholders[i] = "?"
		if b.dialect == backend.DialectPostgres {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		}
		args[i] = v
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)",
		b.qualifiedName(schema, name), p.Column, strings.Join(placeholders, ", "))
	return b.exec(ctx, query, args...)
}

func (b *Backend) InsertIntoFromQuery(ctx context.Context, schema, name, sqlText string) error {
	return b.exec(ctx, fmt.Sprintf("INSERT INTO %s %s", b.qualifiedName(schema, name), sqlText))
}
