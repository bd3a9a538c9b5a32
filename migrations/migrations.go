// Package migrations embeds the SQL schema migrations applied at startup.
package migrations

import "embed"

// FS holds the NNNN_name.{up,down}.sql files.
//
//go:embed *.sql
var FS embed.FS
