package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// postJSON sends payload to url and treats any status >= 400 as an error.
func postJSON(ctx context.Context, client *http.Client, name, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s marshal: %w", name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req) //nolint:gosec // webhook URL from trusted config
	if err != nil {
		return fmt.Errorf("%s send: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%s API %d: %s", name, resp.StatusCode, string(respBody))
	}
	return nil
}

// Slack posts alerts to a Slack incoming webhook using Block Kit.
type Slack struct {
	webhookURL string
	httpClient *http.Client
}

// NewSlack creates a Slack notifier.
func NewSlack(webhookURL string) *Slack {
	return &Slack{webhookURL: webhookURL, httpClient: http.DefaultClient}
}

func (n *Slack) Name() string { return "slack" }

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Notify implements Notifier.
func (n *Slack) Notify(ctx context.Context, a Alert) error {
	if n.webhookURL == "" {
		return ErrNotConfigured
	}
	msg := slackMessage{Blocks: []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: a.title()}},
		{Type: "section", Text: &slackText{Type: "mrkdwn", Text: a.details()}},
	}}
	if a.RuleID != "" {
		msg.Blocks = append(msg.Blocks, slackBlock{
			Type: "context",
			Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("_Rule: %s_", a.RuleID)},
		})
	}
	return postJSON(ctx, n.httpClient, "slack", n.webhookURL, msg)
}

// Discord posts alerts to a Discord webhook as an embed.
type Discord struct {
	webhookURL string
	httpClient *http.Client
}

// NewDiscord creates a Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{webhookURL: webhookURL, httpClient: http.DefaultClient}
}

func (n *Discord) Name() string { return "discord" }

type discordWebhook struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Footer      *discordFooter `json:"footer,omitempty"`
}

type discordFooter struct {
	Text string `json:"text"`
}

// Notify implements Notifier.
func (n *Discord) Notify(ctx context.Context, a Alert) error {
	if n.webhookURL == "" {
		return ErrNotConfigured
	}
	embed := discordEmbed{Title: a.title(), Description: a.details(), Color: urgencyColor(a.Urgency)}
	if a.RuleID != "" {
		embed.Footer = &discordFooter{Text: "Rule: " + a.RuleID}
	}
	return postJSON(ctx, n.httpClient, "discord", n.webhookURL, discordWebhook{Embeds: []discordEmbed{embed}})
}

func urgencyColor(u string) int {
	switch u {
	case "high":
		return 0xE74C3C // red
	case "low":
		return 0x3498DB // blue
	default:
		return 0xF39C12 // orange
	}
}
