// Package auth provides JWT verification and request identity for herald.
//
// API callers authenticate with an HS256-signed JWT carrying the user ID
// in the "sub" claim and "herald" in the "iss" claim; tokens minted for
// other services are rejected even under a shared secret.
// HTTPAuthMiddleware validates the bearer token and attaches the user ID
// to the request context; handlers retrieve it with UserFromContext.
//
// Tokens are minted elsewhere (the account system that fronts herald);
// Generate exists for tests and the bootstrap CLI.
package auth
