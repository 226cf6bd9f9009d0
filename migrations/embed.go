// Package migrations embeds the versioned SQLite schema
package migrations

import "embed"

// FS holds every *.sql migration, applied in filename order
//
//go:embed *.sql
var FS embed.FS
