// Package gateway is the HTTP client for the upstream messaging gateway.
//
// # Surfaces
//
// The gateway exposes two credential planes over one base URL:
//
//   - Management (partner token, held by the client): create and delete
//     channels, list projects.
//   - Session (per-channel token, passed by the caller on every call):
//     health, pairing code, message sends, webhook registration, group
//     listing.
//
// The client is stateless and makes exactly one attempt per call. Retry
// policy lives with callers; IsTransient tells them whether a retry can
// help.
//
// # Error Taxonomy
//
//   - HTTP 404 → ErrChannelNotFound: the channel is gone on the remote
//     side. Callers self-heal by resetting local state.
//   - HTTP 429 and 5xx → *APIError with Transient=true.
//   - Other 4xx → *APIError with Transient=false.
//   - Transport failures → wrapped errors, treated as transient.
//
// # Wire Contract
//
// Management:
//
//	POST   /partner/channels         {"name","project_id"} → {"id","token"}
//	DELETE /partner/channels/{id}
//	GET    /partner/projects         → {"projects":[{"id","name"}]}
//
// Session (Authorization: Bearer <channel token>):
//
//	GET    /health                   → {"status":"qr"|"authenticated"|...}
//	GET    /users/login/image        → image bytes, or {"mime","data"}
//	POST   /messages/text            {"to","body"} → {"message_id"}
//	POST   /messages/media           {"to","body","media_url"} → {"message_id"}
//	PATCH  /settings                 {"webhooks":[{"url","events"}]}
//	GET    /groups                   → {"groups":[{"id","name","labels"}]}
package gateway
