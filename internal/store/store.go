// Package store persists normalized issues and corrective issues. The
// MemoryStore serves tests and demos; the SQLStore runs on SQLite or
// Postgres through database/sql.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"entgo.io/ent/dialect"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/matthewbaird/compliance/internal/types"
)

// ErrIssueNotFound is returned when no normalized issue has a given id.
var ErrIssueNotFound = errors.New("issue not found")

// IssueStore holds normalized issues. Issues are immutable, so writing an
// id that already exists leaves the stored issue untouched.
type IssueStore interface {
	PutIssues(ctx context.Context, issues []types.CorrectableIssue) (inserted int, err error)
	Issue(ctx context.Context, id string) (types.CorrectableIssue, error)
	IssuesByProperty(ctx context.Context, propertyID string) ([]types.CorrectableIssue, error)
	Properties(ctx context.Context) ([]string, error)
}

//go:embed migrations
var migrations embed.FS

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Dialect maps a database/sql driver name to its ent dialect.
func Dialect(driver string) (string, error) {
	switch driver {
	case DriverSQLite:
		return dialect.SQLite, nil
	case DriverPostgres, "postgres":
		return dialect.Postgres, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", driver)
}

// Open connects to the database and returns the handle with its ent dialect.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, string, error) {
	d, err := Dialect(driver)
	if err != nil {
		return nil, "", err
	}
	if driver == "postgres" {
		driver = DriverPostgres
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("opening database: %w", err)
	}
	if d == dialect.SQLite {
		// SQLite allows one writer; a single connection also keeps
		// :memory: databases alive across queries.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("connecting to database: %w", err)
	}
	return db, d, nil
}

// Migrate applies the embedded migrations for dialect d.
func Migrate(ctx context.Context, db *sql.DB, d string, log *zap.Logger) error {
	var (
		gd  goose.Dialect
		dir string
	)
	switch d {
	case dialect.SQLite:
		gd, dir = goose.DialectSQLite3, "migrations/sqlite"
	case dialect.Postgres:
		gd, dir = goose.DialectPostgres, "migrations/postgres"
	default:
		return fmt.Errorf("no migrations for dialect %q", d)
	}

	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		return err
	}
	p, err := goose.NewProvider(gd, db, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}
	results, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	for _, r := range results {
		log.Info("migration applied",
			zap.Int64("version", r.Source.Version),
			zap.String("path", r.Source.Path),
			zap.Duration("duration", r.Duration))
	}
	return nil
}
