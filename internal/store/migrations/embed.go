// Package migrations embeds the SQL schema of app.db.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
