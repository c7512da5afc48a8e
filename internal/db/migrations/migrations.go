// Package migrations embeds the goose SQL migrations for each supported database.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed mysql/*.sql
var mysqlFS embed.FS

//go:embed postgres/*.sql
var postgresFS embed.FS

// MySQL returns the MySQL migrations rooted at the migration files.
func MySQL() fs.FS { return mustSub(mysqlFS, "mysql") }

// Postgres returns the PostgreSQL migrations rooted at the migration files.
func Postgres() fs.FS { return mustSub(postgresFS, "postgres") }

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
