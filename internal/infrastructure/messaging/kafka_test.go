package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cryptogate/gateway_service/internal/domain/entities"
)

type fakeProducer struct {
	events   chan kafka.Event
	produced []*kafka.Message
	err      error
	flushed  bool
	closed   bool
}

func newFakeProducer() *fakeProducer {
	return &fakeProducer{events: make(chan kafka.Event, 4)}
}

func (f *fakeProducer) Produce(msg *kafka.Message, _ chan kafka.Event) error {
	if f.err != nil {
		return f.err
	}
	f.produced = append(f.produced, msg)
	return nil
}

func (f *fakeProducer) Events() chan kafka.Event { return f.events }

func (f *fakeProducer) Flush(int) int {
	f.flushed = true
	return 0
}

func (f *fakeProducer) Close() {
	f.closed = true
	close(f.events)
}

func sampleEvent() entities.StatusChangedEvent {
	return entities.StatusChangedEvent{
		TransactionID:  "0f1e2d3c4b5a6978",
		Provider:       entities.ProviderFinchPay,
		PreviousStatus: entities.TransactionStatusPending,
		Status:         entities.TransactionStatusCompleted,
		Source:         "webhook",
		OccurredAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestKafkaPublisher_PublishStatusChange(t *testing.T) {
	fp := newFakeProducer()
	pub := newKafkaPublisher(fp, "transactions.status", nil)

	require.NoError(t, pub.PublishStatusChange(context.Background(), sampleEvent()))
	require.Len(t, fp.produced, 1)

	msg := fp.produced[0]
	assert.Equal(t, "transactions.status", *msg.TopicPartition.Topic)
	assert.Equal(t, "0f1e2d3c4b5a6978", string(msg.Key))
	assert.Contains(t, msg.Headers, kafka.Header{Key: "provider", Value: []byte("finchpay")})

	var body struct {
		Type string                      `json:"type"`
		Data entities.StatusChangedEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, EventTypeStatusChanged, body.Type)
	assert.Equal(t, entities.TransactionStatusCompleted, body.Data.Status)

	require.NoError(t, pub.Close())
	assert.True(t, fp.flushed)
	assert.True(t, fp.closed)
	require.NoError(t, pub.Close())
}

func TestKafkaPublisher_Errors(t *testing.T) {
	fp := newFakeProducer()
	pub := newKafkaPublisher(fp, "t", nil)
	defer pub.Close()

	err := pub.PublishStatusChange(context.Background(), entities.StatusChangedEvent{})
	assert.Error(t, err)

	fp.err = errors.New("queue full")
	err = pub.PublishStatusChange(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "queue full")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pub.PublishStatusChange(ctx, sampleEvent()), context.Canceled)
}

func TestKafkaPublisher_LogsFailedDelivery(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	fp := newFakeProducer()
	pub := newKafkaPublisher(fp, "t", zap.New(core))

	topic := "t"
	fp.events <- &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Error: errors.New("broker down")},
		Key:            []byte("abc"),
	}
	require.NoError(t, pub.Close())

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Status change delivery failed", logs.All()[0].Message)
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.PublishStatusChange(context.Background(), sampleEvent()))
	assert.NoError(t, p.Close())
}
