// Package ir provides the foundation types shared by every stackline package.
//
// This package contains type definitions, the edit error taxonomy, and the
// canonical encoding used for digests. All other internal packages import ir;
// ir imports nothing internal. This keeps ir the foundational layer with no
// circular dependencies.
//
// Key design constraints:
//   - Timeline positions are time.Duration nanoseconds, never floats
//   - Edit records carry IRValue arguments only (no floats, no null), so
//     they hash and replay byte-identically
//   - Element ordering uses the logical clock (Seq), never wall-clock time
//   - All JSON tags use snake_case
package ir
