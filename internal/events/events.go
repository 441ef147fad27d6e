// Package events publishes sandbox lifecycle notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	natsgo "github.com/nats-io/nats.go"
)

// Type identifies a lifecycle transition.
type Type string

const (
	TypeCreated       Type = "created"
	TypeTerminated    Type = "terminated"
	TypeExpired       Type = "expired"
	TypeDestroyFailed Type = "destroy_failed"
)

// SubjectPrefix is prepended to the event type to form the NATS subject.
const SubjectPrefix = "sandplane.sandbox."

// Event describes one lifecycle transition of a sandbox.
type Event struct {
	Type   Type      `json:"type"`
	Name   string    `json:"name"`
	Handle string    `json:"handle,omitempty"`
	Status string    `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}

// Subject returns the NATS subject the event is published on.
func (e Event) Subject() string {
	return SubjectPrefix + string(e.Type)
}

// Publisher delivers events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close()
}

// Noop discards every event. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close()                               {}

type conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// NATS publishes JSON-encoded events to a NATS server.
type NATS struct {
	nc conn
}

// ConnectNATS dials url and keeps reconnecting for the life of the process.
func ConnectNATS(url, name string, logger *slog.Logger) (*NATS, error) {
	nc, err := natsgo.Connect(url,
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
		natsgo.Name(name),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	logger.Info("nats connected", "url", nc.ConnectedUrl())
	return &NATS{nc: nc}, nil
}

// Publish implements Publisher.
func (n *NATS) Publish(_ context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := n.nc.Publish(e.Subject(), payload); err != nil {
		return fmt.Errorf("failed to publish %s: %w", e.Subject(), err)
	}
	return nil
}

// Close closes the connection.
func (n *NATS) Close() {
	n.nc.Close()
}
