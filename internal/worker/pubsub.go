package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/maplisted/maplisted/internal/events"
)

// PubSubHandler consumes listing lifecycle events for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	purgeJob         *PurgeJob
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	PurgeJob         *PurgeJob
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Configure receive settings.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		purgeJob:         cfg.PurgeJob,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	var event events.Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		// Redelivery cannot fix a malformed payload; ack it instead of
		// letting it loop.
		logger.Error().Err(err).Msg("failed to parse event, dropping message")
		msg.Ack()
		return
	}

	switch event.Type {
	case events.TypeListingDeleted:
		if err := h.purgeJob.Handle(ctx, event); err != nil {
			logger.Error().Err(err).Msg("purge failed")
			msg.Nack()
			return
		}
	case events.TypeAccessGranted:
		// Informational only; nothing to do in this worker.
	default:
		// Ack unknown events to prevent redelivery.
		logger.Warn().Str("event", string(event.Type)).Msg("unknown event type")
		msg.Ack()
		return
	}

	logger.Info().
		Str("event", string(event.Type)).
		Str("listing_id", event.ListingID).
		Dur("duration", time.Since(startTime)).
		Msg("event processed")

	msg.Ack()
}
