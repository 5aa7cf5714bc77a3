package migrations

import "embed"

// FS contains embedded SQLite migrations for the profile store.
//
//go:embed *.sql
var FS embed.FS
