// Package migrations embeds the SQL schema so the binary can migrate
// without the source tree present.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
