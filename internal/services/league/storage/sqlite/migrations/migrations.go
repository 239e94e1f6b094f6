// Package migrations embeds the league store's SQL schema files.
package migrations

import "embed"

// FS holds the embedded migration files applied at store open.
//
//go:embed *.sql
var FS embed.FS
