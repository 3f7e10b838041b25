// Package ir provides the core data types shared by every stencil package.
//
// This package contains type definitions and small pure helpers only. All
// other internal packages import ir; ir imports nothing internal. This keeps
// ir the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - A Shift is [t, x0, x1, ...]: the temporal component always comes first
//   - Grid bounds are half-open [X0, X1) and advance by [DX0, DX1) per step
//   - A Plan's sync vector holds exclusive end offsets terminated by SyncEnd
//   - All JSON/YAML tags use snake_case
package ir
