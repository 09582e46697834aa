package pubsub

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"skechum/internal/config"

	ps "cloud.google.com/go/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	topic   string
	payload []byte
}

func (c *capturePublisher) Publish(_ context.Context, topic string, payload []byte) (string, error) {
	c.topic = topic
	c.payload = payload
	return "msg-1", nil
}

func TestNewPublisherInvalidProject(t *testing.T) {
	cfg := &config.Config{GCPProjectID: ""}
	_, err := NewPublisher(context.Background(), cfg)
	assert.Error(t, err, "expected error when project ID is empty")
}

func TestPublishEvent(t *testing.T) {
	c := &capturePublisher{}
	event := GenerationEvent{
		Type:             EventGenerationCompleted,
		UserID:           "user-1",
		ImageID:          "img-1",
		Style:            "anime",
		Size:             "square",
		Format:           "PNG",
		GenerationTimeMs: 1200,
		OccurredAt:       time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	id, err := PublishEvent(context.Background(), c, "generation-events", event)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	assert.Equal(t, "generation-events", c.topic)

	var decoded GenerationEvent
	require.NoError(t, json.Unmarshal(c.payload, &decoded))
	assert.Equal(t, event, decoded)
}

func TestNopPublisher(t *testing.T) {
	id, err := PublishEvent(context.Background(), NopPublisher{}, "t", GenerationEvent{Type: EventGenerationFailed})
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestPublishWithEmulator(t *testing.T) {
	emulator := os.Getenv("PUBSUB_EMULATOR_HOST")
	if emulator == "" {
		t.Skip("PUBSUB_EMULATOR_HOST is not set, skip emulator integration test")
	}

	ctx := context.Background()
	cfg := &config.Config{GCPProjectID: "test-project"}
	pub, err := NewPublisher(ctx, cfg)
	require.NoError(t, err)
	defer pub.Close()

	topicName := "generation-events-test"
	topic, err := pub.client.CreateTopic(ctx, topicName)
	require.NoError(t, err)
	sub, err := pub.client.CreateSubscription(ctx, "generation-events-test-sub", ps.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	msgID, err := PublishEvent(ctx, pub, topicName, GenerationEvent{Type: EventGenerationCompleted, UserID: "u1"})
	require.NoError(t, err)
	require.NotEmpty(t, msgID)

	recvCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	c := make(chan []byte, 1)
	go func() {
		sub.Receive(recvCtx, func(ctx context.Context, m *ps.Message) {
			c <- m.Data
			m.Ack()
			cancel()
		})
	}()

	select {
	case data := <-c:
		var got GenerationEvent
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, "u1", got.UserID)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message from emulator subscription")
	}
}
