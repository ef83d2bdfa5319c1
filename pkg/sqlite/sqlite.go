package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bandstand/rehearsal-scheduler/pkg/db"
)

// dbConn lets the store run against both *sql.DB and *sql.Tx
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB provides database operations using a local SQLite file
type DB struct {
	*store
	conn *sql.DB
}

var _ db.Database = (*DB)(nil)

// New opens (creating if needed) the SQLite database at path and applies
// migrations. Transactions take the write lock up front so confirmations
// serialize against each other.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if isMemory(path) {
		// every connection to :memory: is a separate database
		conn.SetMaxOpenConns(1)
	}

	if err := Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DB{store: &store{conn: conn}, conn: conn}, nil
}

// Close closes the database
func (d *DB) Close() error {
	return d.conn.Close()
}

// WithinTx executes fn within a database transaction
func (d *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, tx db.Tx) error) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(ctx, &store{conn: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("error rolling back transaction: %v, original error: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func dsn(path string) string {
	params := "_txlock=immediate&_foreign_keys=on"
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	return path + "?" + params
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}
