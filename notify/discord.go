package notify

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type discordEmbed struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Color       int               `json:"color"`
	Footer      map[string]string `json:"footer"`
	Timestamp   string            `json:"timestamp"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// NewDiscord posts embeds to a Discord webhook.
func NewDiscord(webhookURL string, timeout time.Duration) *Channel {
	client := &http.Client{Timeout: timeout}
	return newChannel("discord", func(msg Message) error {
		data, err := json.Marshal(discordPayload{Embeds: []discordEmbed{{
			Title:       msg.Title,
			Description: msg.Body,
			Color:       msg.Color,
			Footer:      map[string]string{"text": "Apex Hunter | Risk-gated futures engine"},
			Timestamp:   msg.At.UTC().Format(time.RFC3339),
		}}})
		if err != nil {
			return err
		}
		resp, err := client.Post(webhookURL, "application/json", bytes.NewBuffer(data))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("discord returned status: %d", resp.StatusCode)
		}
		return nil
	})
}
