// Package migrations embeds the goose SQL migrations applied to the
// postgres schema (spec.md §4.1 "schema changes stay goose-reviewed").
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
