// Package webhook receives push events from the upstream gateway.
//
// The receiver is the passive half of status reconciliation: polling is
// authoritative, webhook delivery just shortens the window. Events may
// arrive duplicated or out of order; everything funnels into the
// orchestrator's idempotent reconcile and unknown input is dropped with
// a 200 so the gateway does not retry what we chose to ignore.
package webhook
