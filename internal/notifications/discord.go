package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Discord is a simple Discord webhook notifier.
type Discord struct {
	webhookURL string
	logger     *log.Logger
	client     *http.Client
}

// NewDiscord creates a new Discord notifier. If webhookURL is empty,
// notifications are silently skipped.
func NewDiscord(webhookURL string, logger *log.Logger) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		logger:     logger,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled returns true if the webhook is configured.
func (d *Discord) Enabled() bool {
	return d != nil && d.webhookURL != ""
}

// discordMessage is the payload for Discord webhook.
type discordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// send posts a message to Discord webhook asynchronously.
// Errors are logged but don't affect caller.
func (d *Discord) send(ctx context.Context, msg discordMessage) {
	if !d.Enabled() {
		return
	}

	go func() {
		body, err := json.Marshal(msg)
		if err != nil {
			d.logger.Printf("discord: failed to marshal message: %v", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", d.webhookURL, bytes.NewReader(body))
		if err != nil {
			d.logger.Printf("discord: failed to create request: %v", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			d.logger.Printf("discord: failed to send webhook: %v", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			d.logger.Printf("discord: webhook returned status %d", resp.StatusCode)
		}
	}()
}

// NotifyContradictedClaim alerts the channel when a claim is
// contradicted by trusted evidence.
func (d *Discord) NotifyContradictedClaim(ctx context.Context, sessionID, claim, rationale, evidenceURL string, confidence float64) {
	fields := []embedField{
		{Name: "Session", Value: fmt.Sprintf("`%s`", sessionID), Inline: true},
		{Name: "Confidence", Value: fmt.Sprintf("%.0f%%", confidence*100), Inline: true},
	}
	if evidenceURL != "" {
		fields = append(fields, embedField{Name: "Evidence", Value: evidenceURL})
	}
	msg := discordMessage{
		Embeds: []discordEmbed{{
			Title:       "Contradicted claim",
			Description: fmt.Sprintf("**%s**\n%s", claim, rationale),
			Color:       0xFF0000, // Red
			Fields:      fields,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}},
	}
	d.send(ctx, msg)
}

// NotifySessionEnded posts a summary when a session completes.
func (d *Discord) NotifySessionEnded(ctx context.Context, sessionID string, verdicts, contradicted int) {
	color := 0x00FF00 // Green
	if contradicted > 0 {
		color = 0xFFA500 // Orange
	}
	msg := discordMessage{
		Embeds: []discordEmbed{{
			Title: "Session ended",
			Color: color,
			Fields: []embedField{
				{Name: "Session", Value: fmt.Sprintf("`%s`", sessionID), Inline: true},
				{Name: "Verdicts", Value: fmt.Sprintf("%d", verdicts), Inline: true},
				{Name: "Contradicted", Value: fmt.Sprintf("%d", contradicted), Inline: true},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	}
	d.send(ctx, msg)
}
