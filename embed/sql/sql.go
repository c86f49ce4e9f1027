// Package sql embeds the goose migrations of the local store.
package sql

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
