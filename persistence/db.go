// Package persistence opens the bun database for the supported drivers and
// applies the embedded schema migrations.
package persistence

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-portal-auth"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Options tunes the connection pool
type Options struct {
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

// Open connects to dsn with the given driver and wraps it in bun.
func Open(driver, dsn string, opts Options) (*bun.DB, error) {
	driver = NormalizeDriver(driver)

	var (
		sqldb *sql.DB
		err   error
	)

	switch driver {
	case DriverSQLite:
		sqldb, err = sql.Open(sqliteshim.ShimName, dsn)
	case DriverPostgres:
		sqldb, err = sql.Open("pgx", dsn)
	case DriverMySQL:
		sqldb, err = sql.Open("mysql", dsn)
	default:
		return nil, unsupportedDriver(driver)
	}
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to open database").
			WithMetadata(map[string]any{"driver": driver})
	}

	if driver == DriverSQLite {
		// a single connection keeps in-memory databases alive and avoids
		// SQLITE_BUSY between writers
		sqldb.SetMaxOpenConns(1)
	} else {
		if opts.MaxOpen > 0 {
			sqldb.SetMaxOpenConns(opts.MaxOpen)
		}
		if opts.MaxIdle > 0 {
			sqldb.SetMaxIdleConns(opts.MaxIdle)
		}
		if opts.ConnMaxLifetime > 0 {
			sqldb.SetConnMaxLifetime(opts.ConnMaxLifetime)
		}
	}

	switch driver {
	case DriverSQLite:
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case DriverPostgres:
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		return bun.NewDB(sqldb, mysqldialect.New()), nil
	}
}

// NormalizeDriver maps common aliases to the driver names used here.
func NormalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite
	case "postgres", "postgresql", "pg", "pgx":
		return DriverPostgres
	case "mysql", "mariadb":
		return DriverMySQL
	default:
		return driver
	}
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded migrations for driver.
func Migrate(ctx context.Context, db *bun.DB, driver string) error {
	driver = NormalizeDriver(driver)

	dialect := map[string]string{
		DriverSQLite:   "sqlite3",
		DriverPostgres: "postgres",
		DriverMySQL:    "mysql",
	}[driver]
	if dialect == "" {
		return unsupportedDriver(driver)
	}

	goose.SetBaseFS(auth.GetMigrationsFS())
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to set migration dialect")
	}

	if err := gooseUpContext(ctx, db.DB, auth.MigrationsDir(driver)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to apply migrations").
			WithMetadata(map[string]any{"driver": driver})
	}
	return nil
}

func unsupportedDriver(driver string) error {
	return goerrors.New("unsupported database driver", goerrors.CategoryBadInput).
		WithMetadata(map[string]any{"driver": driver})
}
