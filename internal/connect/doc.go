// Package connect orchestrates the lifecycle of a user's messaging channel
// on the upstream gateway.
//
// # Lifecycle
//
// A connection moves through a small state machine:
//
//	absent → initializing → awaiting_pairing → connected
//
// connected → disconnected happens only through an explicit Disconnect.
// Any state can fall back to absent through the self-healing path: when the
// gateway reports a channel gone (HTTP 404), the channel fields are cleared
// so the next connect builds a fresh channel instead of retrying a dead
// one. The row itself survives every transition; only its channel fields
// come and go. awaiting_pairing is re-enterable; asking for a fresh code
// does not change state.
//
// # Operations
//
//   - EnsureConnected: idempotent connect. Verifies an existing channel,
//     hands out a pairing code, or creates a channel from scratch.
//   - CheckStatus: one health probe plus status synchronization. Backs the
//     manual refresh action and the periodic poll.
//   - Disconnect: best-effort remote teardown, unconditional local reset.
//   - ReconcileWebhookEvent: folds pushed gateway events into the store.
//
// # Writers and consistency
//
// Three independent writers mutate the same connection row: user-triggered
// orchestrator calls, the periodic poll, and the webhook receiver. Status
// writes are last-write-wins by wall-clock write time. No remote call is
// ever made while holding store state; every operation is a sequence of
// load, call, write steps, so a slow gateway never blocks another writer.
//
// # Pairing age
//
// The gateway does not serve pairing codes for a channel younger than
// roughly a minute. When the remaining age fits inside the configured wait
// budget, the call waits it out; otherwise it returns a pending result and
// the user connects again once the channel has aged.
package connect
