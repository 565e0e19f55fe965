// Package migrations holds the versioned postgres schema.
package migrations

import "embed"

// FS contains the *.up.sql and *.down.sql files
//
//go:embed *.sql
var FS embed.FS
