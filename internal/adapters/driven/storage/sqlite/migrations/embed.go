// Package migrations embeds SQL migration files for the SQLite stores.
// Each database (index, structured, chat) has its own migration directory
// and its own schema_migrations table.
package migrations

import "embed"

// FS contains all SQL migration files embedded at compile time.
//
//go:embed index/*.sql structured/*.sql chat/*.sql
var FS embed.FS
