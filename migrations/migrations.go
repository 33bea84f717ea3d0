// Package migrations embeds the SQL schema migrations.
package migrations

import "embed"

// FS holds the up and down migrations for golang-migrate.
//
//go:embed *.sql
var FS embed.FS
