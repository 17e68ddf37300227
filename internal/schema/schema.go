// Package schema embeds the canonical SQL migration set for the agent-run
// store. It is the single source of truth for schema files: both the
// standalone migrator CLI (migrations/) and the service's own startup
// migration path (internal/store) embed from here, so there is exactly one
// copy of the SQL on disk.
package schema

import "embed"

//go:embed *.sql
var Migrations embed.FS
