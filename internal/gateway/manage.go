// ABOUTME: Management-surface calls: channel lifecycle and project listing
// ABOUTME: All calls authenticate with the partner token

package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// CreateChannel provisions a new channel under the given project and
// returns its credentials. The channel starts unpaired; the user links
// their account by scanning a pairing code.
func (c *Client) CreateChannel(ctx context.Context, name, projectID string) (*ChannelCredentials, error) {
	request := struct {
		Name      string `json:"name"`
		ProjectID string `json:"project_id"`
	}{Name: name, ProjectID: projectID}

	var creds ChannelCredentials
	if err := c.postJSON(ctx, "create_channel", "/partner/channels", c.partnerToken, request, &creds); err != nil {
		return nil, err
	}
	if creds.ID == "" || creds.Token == "" {
		return nil, fmt.Errorf("gateway: create channel response missing credentials")
	}

	c.logger.Info("created gateway channel", "channel_id", creds.ID, "project_id", projectID)
	return &creds, nil
}

// DeleteChannel tears down a channel on the gateway. Deleting a channel
// the gateway already forgot returns ErrChannelNotFound.
func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	path := "/partner/channels/" + url.PathEscape(channelID)
	if _, _, err := c.do(ctx, "delete_channel", http.MethodDelete, path, c.partnerToken, nil); err != nil {
		return err
	}

	c.logger.Info("deleted gateway channel", "channel_id", channelID)
	return nil
}

// ListProjects returns the projects the partner account can create
// channels under. The result is never cached; the gateway may reshuffle
// projects between calls.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var response struct {
		Projects []Project `json:"projects"`
	}
	if err := c.getJSON(ctx, "list_projects", "/partner/projects", c.partnerToken, &response); err != nil {
		return nil, err
	}
	return response.Projects, nil
}
