// Package goposthog sends telemetry to PostHog.
package goposthog

import (
	"context"
	"time"

	"github.com/Vector/vector-docparse/tlmt"
	"github.com/posthog/posthog-go"
)

type service struct {
	client posthog.Client
}

const DefaultEndpoint = "https://eu.i.posthog.com"

func New(publicAPIKey, endpointURL string) (tlmt.Telemetry, error) {
	if endpointURL == "" {
		endpointURL = DefaultEndpoint
	}

	client, err := posthog.NewWithConfig(publicAPIKey, posthog.Config{
		Endpoint:  endpointURL,
		BatchSize: 50,
		Interval:  30 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	return &service{client: client}, nil
}

func (s *service) Send(_ context.Context, event tlmt.Event) error {
	capture := posthog.Capture{
		DistinctId: event.AnonymousID,
		Event:      event.Name,
		Properties: posthog.Properties(event.Properties),
	}

	if err := capture.Validate(); err != nil {
		return err
	}

	return s.client.Enqueue(capture)
}

func (s *service) Close() error {
	if s.client != nil {
		return s.client.Close()
	}

	return nil
}
