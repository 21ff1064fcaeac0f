// Package migrations embeds the goose migrations of the platform database.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
