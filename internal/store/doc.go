// Package store provides SQLite-backed persistence for the circlesync engine.
//
// The store holds:
//   - Users, circles and circle memberships
//   - Moments, letters and comments (soft-deleted, never removed through sync)
//   - The sync_log change log: append-only, one row per mutation
//
// # Critical Patterns
//
// Log/entity consistency
//   - Entity mutations and their log entry are written through the same
//     Querier inside one transaction (see Store.WithTx)
//
// Watermark ordering
//   - Log queries filter with timestamp > since and order by
//     timestamp ASC, id ASC; timestamps are fixed-width UTC text
//
// Partial updates
//   - UPDATE statements use COALESCE(?, column) so absent fields keep
//     their stored value
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - MaxOpenConns=1: one transaction at a time
package store
