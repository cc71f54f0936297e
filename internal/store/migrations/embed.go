// Package migrations embeds the wpp.db schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
