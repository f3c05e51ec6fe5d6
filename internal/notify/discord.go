package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Discord posts messages as webhook embeds.
type Discord struct {
	Webhook     string
	Username    string
	AvatarURL   string
	MentionRole string
	MentionUser string
	Client      *http.Client
}

// NewDiscord returns nil when no webhook is configured.
func NewDiscord(webhook, username, avatarURL, mentionRole, mentionUser string) *Discord {
	if webhook == "" {
		return nil
	}
	if username == "" {
		username = "Server Monitor"
	}
	return &Discord{
		Webhook:     webhook,
		Username:    username,
		AvatarURL:   avatarURL,
		MentionRole: mentionRole,
		MentionUser: mentionUser,
		Client:      &http.Client{Timeout: 30 * time.Second},
	}
}

type discordEmbed struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Color       int     `json:"color"`
	Timestamp   string  `json:"timestamp,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Footer      struct {
		Text string `json:"text"`
	} `json:"footer"`
}

type discordPayload struct {
	Username  string         `json:"username,omitempty"`
	AvatarURL string         `json:"avatar_url,omitempty"`
	Content   string         `json:"content,omitempty"`
	Embeds    []discordEmbed `json:"embeds"`
}

func (d *Discord) payload(m Message) discordPayload {
	e := discordEmbed{
		Title:       m.Title,
		Description: m.Body,
		Color:       m.Severity.Color(),
		Fields:      append([]Field(nil), m.Fields...),
	}
	if !m.At.IsZero() {
		e.Timestamp = m.At.UTC().Format(time.RFC3339)
	}
	if st := m.Severity.Status(); st != "" {
		e.Fields = append(e.Fields, Field{Name: "Status", Value: st, Inline: true})
	}
	e.Footer.Text = d.Username

	var mentions []string
	if d.MentionRole != "" {
		mentions = append(mentions, "<@&"+d.MentionRole+">")
	}
	if d.MentionUser != "" {
		mentions = append(mentions, "<@"+d.MentionUser+">")
	}
	return discordPayload{
		Username:  d.Username,
		AvatarURL: d.AvatarURL,
		Content:   strings.Join(mentions, " "),
		Embeds:    []discordEmbed{e},
	}
}

func (d *Discord) Send(ctx context.Context, m Message) error {
	if d == nil || d.Webhook == "" {
		return errors.New("discord disabled")
	}
	body, err := json.Marshal(d.payload(m))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Webhook, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
