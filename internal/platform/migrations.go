// Package platform holds the coordinator's embedded schema migrations.
package platform

import "embed"

// Migrations embeds the goose migration set applied at startup by
// pkg/db.Open's WithMigrations option.
//
//go:embed migrations/*.sql
var Migrations embed.FS
