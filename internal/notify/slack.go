package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type Slack struct {
	Webhook string
	Client  *http.Client
}

// NewSlack returns nil when no webhook is configured.
func NewSlack(webhook string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{
		Webhook: webhook,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type slackPayload struct {
	Text string `json:"text"`
}

func (s *Slack) Send(ctx context.Context, m Message) error {
	if s == nil || s.Webhook == "" {
		return errors.New("slack disabled")
	}
	var b strings.Builder
	b.WriteString("*" + m.Title + "*\n")
	b.WriteString(m.Body)
	for _, f := range m.Fields {
		fmt.Fprintf(&b, "\n%s: %s", f.Name, f.Value)
	}
	body, _ := json.Marshal(slackPayload{Text: b.String()})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Webhook, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("slack: non-2xx status %d", resp.StatusCode)
	}
	return nil
}
