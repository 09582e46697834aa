package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"skechum/internal/config"

	"cloud.google.com/go/pubsub"
)

// Event types published on the generation topic.
const (
	EventGenerationCompleted = "generation.completed"
	EventGenerationFailed    = "generation.failed"
)

// GenerationEvent describes the outcome of one generation attempt.
type GenerationEvent struct {
	Type             string    `json:"type"`
	UserID           string    `json:"user_id"`
	ImageID          string    `json:"image_id,omitempty"`
	Style            string    `json:"style"`
	Size             string    `json:"size"`
	Format           string    `json:"format"`
	GenerationTimeMs int64     `json:"generation_time_ms,omitempty"`
	Error            string    `json:"error,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// Publisher defines an interface for publishing messages.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) (string, error)
}

// PubSubPublisher is an implementation of Publisher using Google Pub/Sub.
type PubSubPublisher struct {
	client *pubsub.Client
}

// NewPublisher creates a new PubSubPublisher using the GCP project from config.
func NewPublisher(ctx context.Context, cfg *config.Config) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.GCPProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Pub/Sub client: %w", err)
	}
	return &PubSubPublisher{client: client}, nil
}

// Publish sends the payload to the given Pub/Sub topic and returns the message ID.
func (p *PubSubPublisher) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	t := p.client.Topic(topic)
	result := t.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string{"content_type": "application/json"},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to publish message to topic %s: %w", topic, err)
	}
	return id, nil
}

// Close releases the underlying client.
func (p *PubSubPublisher) Close() error {
	return p.client.Close()
}

// NopPublisher discards messages. Used when no GCP project is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, []byte) (string, error) {
	return "", nil
}

// PublishEvent marshals event as JSON and publishes it to topic.
func PublishEvent(ctx context.Context, p Publisher, topic string, event GenerationEvent) (string, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}
	return p.Publish(ctx, topic, payload)
}
