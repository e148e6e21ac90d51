// Package migrations embeds the SQL schema migrations applied by
// `bmp-station migrate`.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
