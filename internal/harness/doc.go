// Package harness runs sync scenarios against the real engine.
//
// A scenario registers users, creates circles and then drives the engine
// through push, pull and snapshot steps the way clients would, checking each
// response and finally the change log and entity state.
//
// # Scenario Format
//
//	name: idempotent_create
//	description: "Pushing the same create twice conflicts"
//	users: [u1, u2]
//	circles:
//	  - id: c1
//	    name: Family
//	    admin: u1
//	    members: [u2]
//	steps:
//	  - op: push
//	    as: u1
//	    circle: c1
//	    changes:
//	      - {type: moment, id: m1, action: create, data: {content: hi}}
//	    expect:
//	      results: [{status: success}]
//	  - op: pull
//	    as: u2
//	    circle: c1
//	    since: watermark
//	    expect: {changes: 3, has_more: false}
//	assertions:
//	  - type: log_count
//	    entity_type: moment
//	    entity_id: m1
//	    count: 1
//
// Step ops: push, pull, full_sync, add_member, remove_member, seal_letter,
// verify. A step expecting a request-level failure names its code in
// expect.error (FORBIDDEN, VALIDATION_ERROR, ...).
//
// # Assertion Types
//
//   - log_count: number of log entries of an entity or a circle
//   - log_order: "type:id:action" entries appear in this order
//   - entity_state: subset match on entity fields, plus "deleted"
//   - consistent: the verifier finds no issues in the circle
//
// # Determinism
//
// Every run uses a fresh in-memory database, a clock that starts at
// 2026-01-01T00:00:00Z and advances one second per timestamp, and
// sequential ids. Traces are rendered in canonical JSON and compared with
// golden files.
package harness
