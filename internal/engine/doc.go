// Package engine implements the stencil orchestration object.
//
// A Stencil collects a shape, storage arrays, domains and two kernel
// catalogs, turns them into plans and executes plans.
//
// REGISTRATION:
//
//	Unregistered --shape--> ShapeReady --arrays, domains--> Configured
//
// Plan generation and runs need Configured; anything else is a ConfigError.
// Kernel registration may register further shapes, but once arrays are
// bound it may not widen the derived slope, toggle or time shift.
//
// PLANS:
//
// The decomposition oracle builds a spawn tree over the logical domain and
// the shifted time range. The tree is drained into epochs: each round
// collects every region not behind a sync marker, so regions of one epoch
// never depend on each other. The epoch sizes become the sync vector.
// Each plan takes the next color id; tiled plans also produce a color
// vector and a generated kernel module keyed by that color.
//
// EXECUTION:
//
//   - Run: interpreted stepping through the tile catalog
//   - RunObase: fork/join per epoch, each region re-decomposed by the oracle
//   - RunObaseMerge: RunObase with region kernels from a loaded module
//
// Epochs are separated by a barrier. Kernel panics surface as InternalError.
package engine
