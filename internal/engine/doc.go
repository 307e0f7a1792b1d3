// Package engine implements the circlesync offline-first sync engine.
//
// Clients edit locally while offline and later reconcile through three
// operations:
//
//   - Push applies a batch of client changes. Each change is checked by the
//     conflict policy (Decide) and, when applied, mutates its entity and
//     appends one change log entry in the same transaction.
//   - Pull serves log entries after a watermark, oldest first, with
//     pagination and the next watermark.
//   - FullSync returns a circle's live state for clients with no watermark.
//
// ORDERING:
//
// Every log entry gets a server timestamp from the engine's TimeSource,
// issued inside the transaction that writes it. The store runs on a single
// connection, so transactions are serialized and timestamps in the log are
// strictly increasing in processing order. Client timestamps are never used
// for ordering.
//
// POLICY:
//
// Only an entity's author may update or delete it. Create of an existing id
// is a conflict, which makes client retries idempotent. There is no merge:
// edits from one author's devices apply in arrival order.
//
// ERRORS:
//
// Request-level failures (validation, membership) are returned as
// *SyncError. Per-change outcomes are data in the PushResponse and never
// abort the batch.
package engine
