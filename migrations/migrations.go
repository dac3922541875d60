// Package migrations embeds the shared Postgres schema. Every service runs
// goose at startup via db.Migrate; the version table serializes racing runs.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

const Dir = "."
