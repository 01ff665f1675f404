// Package migrations provides embedded migration SQL files for the
// Postgres repository.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
