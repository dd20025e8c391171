// Package events carries channel lifecycle notifications: a bounded
// per-channel history served over HTTP and an optional MQTT fan-out.
package events

import (
	"context"
	"time"
)

// Type names what happened.
type Type string

const (
	TypeStatus         Type = "status"
	TypeFailover       Type = "failover"
	TypeRestore        Type = "restore"
	TypeReconnect      Type = "reconnect"
	TypeReconnectGave  Type = "reconnect_exhausted"
	TypePreviewTimeout Type = "preview_timeout"
	TypeHealth         Type = "health"
	TypeOutput         Type = "output"
)

// Event is one notification about a channel. Output is -1 when the event
// concerns the channel as a whole.
type Event struct {
	Time      time.Time `json:"time"`
	ChannelID string    `json:"channel_id"`
	Type      Type      `json:"type"`
	Status    string    `json:"status,omitempty"`
	Output    int       `json:"output"`
	Message   string    `json:"message,omitempty"`
}

// Publisher delivers events outside the process.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close()
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close()                               {}
