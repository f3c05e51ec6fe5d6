package notify

import (
	"context"
	"time"

	"go.uber.org/multierr"
)

// Severity selects the presentation of a message.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityOffline Severity = "offline"
	SeverityRestart Severity = "restart"
	SeverityOnline  Severity = "online"
)

// Color is the embed color for the severity.
func (s Severity) Color() int {
	switch s {
	case SeverityOffline:
		return 0xFF0000
	case SeverityRestart:
		return 0xFFA500
	case SeverityOnline:
		return 0x00FF00
	}
	return 0x0080FF
}

// Status is the short status label shown next to the server.
func (s Severity) Status() string {
	switch s {
	case SeverityOffline:
		return ":red_circle: OFFLINE"
	case SeverityRestart:
		return ":yellow_circle: RESTARTING"
	case SeverityOnline:
		return ":green_circle: ONLINE"
	}
	return ""
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Message is a rendered notification, independent of the channel.
type Message struct {
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Severity Severity  `json:"severity"`
	Fields   []Field   `json:"fields,omitempty"`
	At       time.Time `json:"at"`
	EventID  string    `json:"event_id,omitempty"`
}

// Sink delivers a message to one channel.
type Sink interface {
	Send(ctx context.Context, m Message) error
}

// Multi sends to every sink and returns all delivery errors combined.
type Multi []Sink

func (m Multi) Send(ctx context.Context, msg Message) error {
	var err error
	for _, s := range m {
		if s == nil {
			continue
		}
		err = multierr.Append(err, s.Send(ctx, msg))
	}
	return err
}
