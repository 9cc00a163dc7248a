package messaging

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"

	"github.com/cryptogate/gateway_service/internal/domain/entities"
	"github.com/cryptogate/gateway_service/internal/infrastructure/config"
)

const flushTimeoutMs = 5000

// producer is the part of *kafka.Producer the publisher uses
type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Events() chan kafka.Event
	Flush(timeoutMs int) int
	Close()
}

// KafkaPublisher writes status changes to a Kafka topic. Delivery reports
// are consumed in the background and failures logged.
type KafkaPublisher struct {
	producer producer
	topic    string
	logger   *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewKafkaPublisher connects a producer for the configured brokers
func NewKafkaPublisher(cfg config.MessagingConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "gateway-service"
	}
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": strings.Join(cfg.Brokers, ","),
		"client.id":         clientID,
		"acks":              "all",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	logger.Info("Kafka publisher created", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))
	return newKafkaPublisher(p, cfg.Topic, logger), nil
}

func newKafkaPublisher(p producer, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	k := &KafkaPublisher{
		producer: p,
		topic:    topic,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go k.watchDeliveries()
	return k
}

func (k *KafkaPublisher) watchDeliveries() {
	defer close(k.done)
	for ev := range k.producer.Events() {
		switch e := ev.(type) {
		case *kafka.Message:
			if e.TopicPartition.Error != nil {
				k.logger.Error("Status change delivery failed",
					zap.String("key", string(e.Key)),
					zap.Error(e.TopicPartition.Error))
			}
		case kafka.Error:
			k.logger.Error("Kafka producer error", zap.Error(e))
		}
	}
}

// PublishStatusChange enqueues the event. It does not wait for the broker.
func (k *KafkaPublisher) PublishStatusChange(ctx context.Context, event entities.StatusChangedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, value, err := encode(event)
	if err != nil {
		return err
	}
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &k.topic, Partition: kafka.PartitionAny},
		Key:            key,
		Value:          value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventTypeStatusChanged)},
			{Key: "provider", Value: []byte(event.Provider.Slug())},
		},
	}
	if err := k.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("failed to produce status change for %s: %w", event.TransactionID, err)
	}
	return nil
}

// Close flushes outstanding messages and closes the producer
func (k *KafkaPublisher) Close() error {
	k.closeOnce.Do(func() {
		if left := k.producer.Flush(flushTimeoutMs); left > 0 {
			k.logger.Warn("Kafka messages left unflushed on close", zap.Int("count", left))
		}
		k.producer.Close()
		<-k.done
	})
	return nil
}
