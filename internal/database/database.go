package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"           // Required by the library implementation.
	_ "github.com/mattn/go-sqlite3" // Required by the library implementation.
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

var ErrNotFound = errors.New("not found")

type Database struct {
	db     *sql.DB
	driver string
	log    *slog.Logger
}

//go:embed migrations
var migrationsFS embed.FS

// New opens the database behind dsn and applies pending migrations. A DSN
// starting with postgres:// or postgresql:// selects Postgres, anything else
// is treated as a SQLite file path.
func New(ctx context.Context, dsn string, log *slog.Logger) (*Database, error) {
	driver, dataSource := driverFor(dsn)

	dbFile, err := sql.Open(driver, dataSource)
	if err != nil {
		return nil, fmt.Errorf("open DB: %w", err)
	}

	if err = dbFile.PingContext(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("ping DB: %w", err), dbFile.Close())
	}

	if err = migrateUp(ctx, dbFile, driver, log); err != nil {
		return nil, errors.Join(err, dbFile.Close())
	}

	return &Database{db: dbFile, driver: driver, log: log}, nil
}

// NewWithDB wraps an already opened handle without running migrations.
func NewWithDB(db *sql.DB, driver string, log *slog.Logger) *Database {
	return &Database{db: db, driver: driver, log: log}
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *Database) Driver() string {
	return d.driver
}

func driverFor(dsn string) (string, string) {
	dsn = strings.TrimSpace(dsn)

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DriverPostgres, dsn
	}

	if !strings.Contains(dsn, "_foreign_keys") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_foreign_keys=on"
	}

	return DriverSQLite, dsn
}

func migrateUp(ctx context.Context, dbFile *sql.DB, driver string, log *slog.Logger) error {
	var (
		dbInstance database.Driver
		err        error
	)

	switch driver {
	case DriverPostgres:
		dbInstance, err = postgres.WithInstance(dbFile, &postgres.Config{})
	default:
		dbInstance, err = sqlite3.WithInstance(dbFile, &sqlite3.Config{})
	}
	if err != nil {
		return fmt.Errorf("create DB instance: %w", err)
	}

	sub, err := fs.Sub(migrationsFS, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("open migrations dir: %w", err)
	}

	srcInstance, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create source instance: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcInstance, driver, dbInstance)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	migrateErr := m.Up()

	version, dirty, versionErr := m.Version()
	fields := []any{
		"driver", driver,
	}

	if versionErr == nil {
		fields = append(fields, "version", version, "dirty", dirty)
	} else if !errors.Is(versionErr, migrate.ErrNilVersion) {
		log.WarnContext(ctx, "Failed to fetch migration version",
			"error", versionErr,
			"driver", driver)
	}

	if migrateErr != nil {
		if !errors.Is(migrateErr, migrate.ErrNoChange) {
			return fmt.Errorf("apply migrations: %w", migrateErr)
		}

		log.InfoContext(ctx, "No migrations to apply", fields...)
	} else {
		log.InfoContext(ctx, "DB is migrated", fields...)
	}

	return nil
}

// rebind rewrites ? placeholders into $n for Postgres.
func (d *Database) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}

	return b.String()
}

func (d *Database) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, d.rebind(query), args...)
}

func (d *Database) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.db.QueryContext(ctx, d.rebind(query), args...)
}

func (d *Database) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.db.QueryRowContext(ctx, d.rebind(query), args...)
}

func (d *Database) closeRows(ctx context.Context, rows *sql.Rows, operation string) {
	if err := rows.Close(); err != nil {
		d.log.ErrorContext(ctx, "Failed to close rows",
			"error", err,
			"operation", operation)
	}
}
