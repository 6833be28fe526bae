// Package store provides persistent storage for herald using SQLite.
//
// # Data Models
//
//   - Connection: One row per user, tracking their channel on the upstream
//     gateway and its lifecycle status. The row is never deleted once a
//     user has connected: disconnects and channel resets clear the channel
//     fields and keep the plan and trial bookkeeping.
//   - Broadcast: A scheduled message with a recipient snapshot (group IDs
//     resolved at creation time) and a send time.
//   - Delivery: Append-only per-group outcome records written during
//     dispatch. Exactly one per recipient group per dispatch.
//   - Group: Mirror of the user's messaging-account groups, replaced
//     wholesale on each sync.
//
// # Concurrency
//
// Two writers race on connection status: the poller and the webhook
// receiver. SetConnectionStatus resolves the race last-write-wins on
// wall-clock time; no observation ordering is enforced.
//
// Broadcast claiming uses a compare-and-set from pending to sending so
// overlapping dispatch runs never double-send. FinishBroadcast guards on
// the sending state so rollups never clobber a cancellation.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Timestamps are stored as RFC3339 UTC strings, which sort
// lexicographically in chronological order.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrDuplicateBroadcast: Broadcast ID already taken
//   - ErrNotPending: Cancel attempted after the broadcast left pending
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Tests run against a throwaway file-backed store under t.TempDir();
// see setupTestStore in store_test.go.
package store
