// ABOUTME: Session-surface calls: health, pairing code, sends, webhook, groups
// ABOUTME: Every call takes the per-channel token; the client holds no session state

package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Health returns the channel's remote status string (e.g. "qr",
// "authenticated"). Interpretation of the vocabulary belongs to the
// caller; this just reports what the gateway said.
func (c *Client) Health(ctx context.Context, token string) (string, error) {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.getJSON(ctx, "health", "/health", token, &response); err != nil {
		return "", err
	}
	if response.Status == "" {
		return "", fmt.Errorf("gateway: health response missing status")
	}
	return response.Status, nil
}

// PairingCode fetches the scannable pairing image for an unpaired channel.
// The gateway serves either raw image bytes or a JSON envelope with
// pre-encoded data; both come back as mime + base64.
func (c *Client) PairingCode(ctx context.Context, token string) (*PairingCode, error) {
	body, contentType, err := c.do(ctx, "pairing_code", http.MethodGet, "/users/login/image", token, nil)
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(contentType, "image/") {
		mime := contentType
		if idx := strings.Index(mime, ";"); idx >= 0 {
			mime = strings.TrimSpace(mime[:idx])
		}
		return &PairingCode{
			MimeType: mime,
			Base64:   base64.StdEncoding.EncodeToString(body),
		}, nil
	}

	var response struct {
		Mime string `json:"mime"`
		Data string `json:"data"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("gateway: decoding pairing code response: %w", err)
	}
	if response.Data == "" {
		return nil, fmt.Errorf("gateway: pairing code response missing image data")
	}
	if response.Mime == "" {
		response.Mime = "image/png"
	}

	return &PairingCode{MimeType: response.Mime, Base64: response.Data}, nil
}

// SendText delivers a text message to a recipient group. Returns the
// gateway's message ID.
func (c *Client) SendText(ctx context.Context, token, to, body string) (string, error) {
	request := struct {
		To   string `json:"to"`
		Body string `json:"body"`
	}{To: to, Body: body}

	var response struct {
		MessageID string `json:"message_id"`
	}
	if err := c.postJSON(ctx, "send_text", "/messages/text", token, request, &response); err != nil {
		return "", err
	}
	return response.MessageID, nil
}

// SendMedia delivers a media message (image, document) with an optional
// caption to a recipient group. The gateway fetches the media from the
// given URL. Returns the gateway's message ID.
func (c *Client) SendMedia(ctx context.Context, token, to, body, mediaURL string) (string, error) {
	request := struct {
		To       string `json:"to"`
		Body     string `json:"body,omitempty"`
		MediaURL string `json:"media_url"`
	}{To: to, Body: body, MediaURL: mediaURL}

	var response struct {
		MessageID string `json:"message_id"`
	}
	if err := c.postJSON(ctx, "send_media", "/messages/media", token, request, &response); err != nil {
		return "", err
	}
	return response.MessageID, nil
}

// webhookConfig is one webhook registration in the channel settings.
type webhookConfig struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// SetWebhook points the channel's event push at the given URL for the
// given event kinds. Re-registering the same URL is harmless.
func (c *Client) SetWebhook(ctx context.Context, token, webhookURL string, events []string) error {
	request := struct {
		Webhooks []webhookConfig `json:"webhooks"`
	}{Webhooks: []webhookConfig{{URL: webhookURL, Events: events}}}

	_, _, err := c.do(ctx, "set_webhook", http.MethodPatch, "/settings", token, request)
	return err
}

// ListGroups returns the recipient groups visible to the channel's
// linked account.
func (c *Client) ListGroups(ctx context.Context, token string) ([]RemoteGroup, error) {
	var response struct {
		Groups []RemoteGroup `json:"groups"`
	}
	if err := c.getJSON(ctx, "list_groups", "/groups", token, &response); err != nil {
		return nil, err
	}
	return response.Groups, nil
}
