// Package bus publishes parse job lifecycle events to NATS.
package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

const DefaultSubjectPrefix = "docparse.jobs"

// Event types
const (
	EventStarted   = "started"
	EventSucceeded = "succeeded"
	EventFailed    = "failed"
)

// Event describes a state change of a parse job.
type Event struct {
	Type          string    `json:"type"`
	JobID         string    `json:"job_id"`
	FileID        int64     `json:"file_id"`
	RequesterID   string    `json:"requester_id"`
	ContentLength int       `json:"content_length,omitempty"`
	Error         string    `json:"error,omitempty"`
	At            time.Time `json:"at"`
}

type Client struct {
	nc     *nats.Conn
	prefix string
}

func Connect(url, prefix string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name("docparse"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}

	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	return &Client{nc: nc, prefix: prefix}, nil
}

// Close drains pending messages before closing the connection.
func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

func (c *Client) Conn() *nats.Conn { return c.nc }

// Subject returns the subject an event of the given type is published on.
func (c *Client) Subject(eventType string) string {
	return c.prefix + "." + eventType
}

func (c *Client) Publish(_ context.Context, evt Event) error {
	return c.PublishJSON(c.Subject(evt.Type), evt)
}

func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}

func (c *Client) SubscribeJSON(subject string, handler func(ctx context.Context, data []byte)) (*nats.Subscription, error) {
	return c.nc.Subscribe(subject, func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		handler(ctx, msg.Data)
	})
}
