// AngelaMos | 2026
// embed.go

package migrations

import "embed"

// FS holds the schema migrations in golang-migrate naming.
//
//go:embed *.sql
var FS embed.FS
