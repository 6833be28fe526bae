// ABOUTME: Wire types returned by the gateway API surfaces
// ABOUTME: Management types (channels, projects) and session types (pairing, groups)

package gateway

import "time"

// ChannelCredentials identifies a channel created on the gateway along
// with the token that authenticates session calls against it. Plan and
// TrialEndsAt describe the billing tier the gateway assigned; new
// channels start on a sandbox trial.
type ChannelCredentials struct {
	ID          string     `json:"id"`
	Token       string     `json:"token"`
	Plan        string     `json:"plan"`
	TrialEndsAt *time.Time `json:"trial_ends_at"`
}

// Project is a gateway-side grouping for channels. Channels are created
// under a project; the project listing resolves usable project IDs.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PairingCode is the scannable code image the user's phone reads to link
// their messaging account to the channel.
type PairingCode struct {
	MimeType string
	Base64   string
}

// RemoteGroup is a recipient group as the gateway reports it. Labels are
// the messaging account's own group labels; they become local tags.
type RemoteGroup struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Labels []string `json:"labels"`
}
