package persistence_test

import (
	"context"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-portal-auth/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDriver(t *testing.T) {
	cases := map[string]string{
		"":           persistence.DriverSQLite,
		"sqlite3":    persistence.DriverSQLite,
		"PostgreSQL": persistence.DriverPostgres,
		"pgx":        persistence.DriverPostgres,
		"mariadb":    persistence.DriverMySQL,
		"oracle":     "oracle",
	}
	for in, want := range cases {
		assert.Equal(t, want, persistence.NormalizeDriver(in), in)
	}
}

func TestOpenUnsupported(t *testing.T) {
	_, err := persistence.Open("oracle", "dsn", persistence.Options{})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, errors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryBadInput, richErr.Category)
}

func TestMigrateUnsupported(t *testing.T) {
	db, err := persistence.Open("sqlite", "file:migrate_unsupported?mode=memory&cache=shared", persistence.Options{})
	require.NoError(t, err)
	defer db.Close()

	err = persistence.Migrate(context.Background(), db, "oracle")
	var richErr *goerrors.Error
	require.True(t, errors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryBadInput, richErr.Category)
}

func TestMigrateSQLite(t *testing.T) {
	ctx := context.Background()

	db, err := persistence.Open("sqlite", "file:migrate_test?mode=memory&cache=shared", persistence.Options{})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, persistence.Migrate(ctx, db, "sqlite"))
	// applying twice is a no-op
	require.NoError(t, persistence.Migrate(ctx, db, "sqlite"))

	for _, table := range []string{"accounts", "account_roles", "reset_tokens"} {
		var n int
		err := db.NewRaw("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(ctx, &n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}
}
