// Package events publishes listing lifecycle events for asynchronous
// consumers, such as the approval purge worker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// EventType identifies a listing lifecycle event.
type EventType string

// Event types.
const (
	TypeListingDeleted EventType = "listing.deleted"
	TypeAccessGranted  EventType = "access.granted"
)

// Event is a listing lifecycle event.
type Event struct {
	Type      EventType `json:"type"`
	ListingID string    `json:"listing_id"`
	ViewerID  string    `json:"viewer_id,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Publisher publishes listing lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher discards events. Used in tests and when Pub/Sub is not
// configured.
type NopPublisher struct{}

// Publish discards the event.
func (NopPublisher) Publish(_ context.Context, _ Event) error { return nil }

// PubSubPublisher publishes events to a Google Cloud Pub/Sub topic.
type PubSubPublisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	logger    zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub publisher.
type PubSubConfig struct {
	ProjectID string
	TopicName string
	Logger    zerolog.Logger
}

// NewPubSubPublisher creates a publisher for the configured topic.
func NewPubSubPublisher(ctx context.Context, cfg PubSubConfig) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	return &PubSubPublisher{
		client:    client,
		publisher: client.Publisher(cfg.TopicName),
		logger:    cfg.Logger,
	}, nil
}

// Publish sends the event and waits for the server acknowledgement.
func (p *PubSubPublisher) Publish(ctx context.Context, e Event) error {
	if e.EmittedAt.IsZero() {
		e.EmittedAt = time.Now()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{Data: data})
	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}

	p.logger.Debug().
		Str("message_id", id).
		Str("event", string(e.Type)).
		Str("listing_id", e.ListingID).
		Msg("published listing event")

	return nil
}

// Close closes the underlying Pub/Sub client.
func (p *PubSubPublisher) Close() error {
	return p.client.Close()
}

// Ensure implementations satisfy Publisher.
var (
	_ Publisher = NopPublisher{}
	_ Publisher = (*PubSubPublisher)(nil)
)
