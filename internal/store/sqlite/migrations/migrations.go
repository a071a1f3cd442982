package migrations

import "embed"

// Migrations holds the schema migrations applied by sqlite.Store.ApplyMigrations.
//
//go:embed *.sql
var Migrations embed.FS
