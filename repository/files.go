package repository

import (
	"embed"
	"io/fs"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// MigrationsFS returns the SQL migrations rooted at the migrations directory.
func MigrationsFS() (fs.FS, error) {
	return fs.Sub(migrationsFS, "data/sql/migrations")
}
