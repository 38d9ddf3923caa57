// Package ir provides the canonical data types shared by every requex layer:
// events, constrained payload values, graph definitions, and journal records.
//
// ir imports nothing internal, so it stays the foundation with no import
// cycles.
//
// Key constraints:
//   - No float types anywhere; numbers are int64
//   - Canonical JSON (RFC 8785) is the only serialization that is hashed
//   - All JSON tags use snake_case
//   - Journal ordering uses logical clocks (seq), never wall-clock time
package ir
