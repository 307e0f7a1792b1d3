// Package ir provides the wire and domain types shared by every circlesync package.
//
// This package contains type definitions and their encodings only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Server timestamps are UTC with fixed microsecond precision, so their
//     text form sorts the same way the instants do
//   - Wire JSON uses camelCase tags
//   - Change payloads are a tagged union keyed by EntityType, never free-form maps
package ir
