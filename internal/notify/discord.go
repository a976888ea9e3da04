package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// DiscordWebhook posts announcements to a Discord channel webhook.
type DiscordWebhook struct {
	url    string
	client *http.Client
}

// NewDiscordWebhook returns a sink posting to webhookURL. A nil client uses
// http.DefaultClient; callers bound each send through the context.
func NewDiscordWebhook(webhookURL string, client *http.Client) *DiscordWebhook {
	if client == nil {
		client = http.DefaultClient
	}
	return &DiscordWebhook{url: webhookURL, client: client}
}

type discordMessage struct {
	Content string `json:"content"`
}

// Send posts one message and fails on any non-2xx answer.
func (d *DiscordWebhook) Send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(discordMessage{Content: FormatMessage(p)})
	if err != nil {
		return fmt.Errorf("marshal discord message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post discord webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("discord webhook answered %s", resp.Status)
	}
	return nil
}

// FormatMessage renders the markdown announcement for an upload.
func FormatMessage(p Payload) string {
	return "**{==========} `NEW FILE` {==========}**\n\n" +
		fmt.Sprintf("**- [%s](%s)**\n", p.FileName, p.FileURL) +
		fmt.Sprintf("**- `%s`**\n", p.Timestamp) +
		"**- NO-1\n" +
		"{================================}**"
}

var _ Sink = (*DiscordWebhook)(nil)
