// Package dispatch sends scheduled broadcasts through the gateway.
//
// The engine is pull-based: the server ticks RunDueBroadcasts on a fixed
// interval, and each pass claims up to a batch of pending broadcasts whose
// send time has arrived, oldest due first. The claim is a conditional
// pending→sending update; zero rows affected means another pass owns the
// broadcast, which is the whole exactly-once story.
//
// Per broadcast, the flow is: gate on the owner's connection (not connected
// fails the broadcast immediately, with no send attempts), send to each
// recipient group sequentially, append one delivery row per attempt, then
// write the rollup once: sent, partial, or failed. Failures are contained
// at two levels: a recipient failure becomes a failed delivery row, and a
// broadcast failure becomes a failed broadcast; neither stops the batch.
//
// SendDirect reuses the identical machinery for the immediate send action,
// so a direct message and a scheduled one are indistinguishable in the
// audit trail.
package dispatch
