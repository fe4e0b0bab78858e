package auth

import (
	"embed"
	"path"
)

// Schema migrations, one goose directory per SQL dialect.
//
//go:embed data/sql/migrations
var migrationsFS embed.FS

const migrationsRoot = "data/sql/migrations"

// GetMigrationsFS returns the embedded migration tree
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// MigrationsDir is the directory inside GetMigrationsFS holding the
// migrations for driver ("sqlite", "postgres" or "mysql").
func MigrationsDir(driver string) string {
	return path.Join(migrationsRoot, driver)
}
