// Package store provides the SQLite-backed plan catalog.
//
// The catalog records every generated plan with:
//   - Plans: stencil name, spec hash, plan hash, color, mode, timesteps and
//     the base path of the plan's side files
//   - Regions: one row per region in plan order, grids as JSON
//   - Epochs: the sync vector without its terminator
//
// # Critical Patterns
//
// Logical ordering
//   - Listing and LatestPlan order by insertion (rowid), NEVER timestamps
//
// Content addressing
//   - plan_hash is ir.PlanHash over the stored plan; ReadPlan recomputes it
//     and rejects a mismatch
//   - spec_hash is ir.SpecHash of the compiled spec the plan was built from
//
// Colors
//   - NextColor continues numbering after the largest stored color, so a
//     new plan never aliases a stored plan's generated kernel module
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes (file catalogs only)
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout: Wait for locks, 5 seconds unless WithBusyTimeout
//   - foreign_keys=ON: Enforce referential integrity
package store
