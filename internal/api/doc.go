// Package api serves herald's authenticated HTTP surface.
//
// Handlers are deliberately thin. All channel lifecycle behavior lives in
// the connect orchestrator; all sending behavior lives in the dispatch
// engine. The one piece of logic owned here is the error contract:
//
//	502 retryable: true              transient gateway trouble, same call again
//	409 requires_new_instance: true  the channel is gone, start a fresh connect
//	400                              the request itself is wrong
//	404                              unknown (or someone else's) resource
//
// The JWT bearer middleware resolves the acting user from the token's sub
// claim; no handler reads a user identifier from the request body or path.
package api
