// Package migrations carries the embedded SQL applied at startup by
// database.DB.Migrate. Schema holds the versioned schema changes that
// every deployment runs; DemoSeed holds a small demo dataset applied
// only when database.seed_demo_data is enabled.
package migrations

import "embed"

//go:embed 0001_init.sql
var Schema embed.FS

//go:embed 0002_seed.sql
var DemoSeed embed.FS
