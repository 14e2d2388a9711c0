// Package kafka publishes gateway events to a Kafka topic for downstream
// consumers (analytics, moderation, notification fan-in). Delivery is
// fire-and-forget: a broker hiccup costs audit records, never a broadcast.
package kafka

import (
	"encoding/json"
	"log/slog"

	"github.com/IBM/sarama"

	"chat-gateway/internal/gateway"
)

// InitProducer builds an async producer tuned for the gateway's event
// volume.
func InitProducer(brokers []string, clientID string) (sarama.AsyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = false
	config.Producer.Return.Errors = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V2_0_0_0
	config.ClientID = clientID

	return sarama.NewAsyncProducer(brokers, config)
}

// EventPublisher implements gateway.EventSink over an async producer.
// Events are keyed by user so one user's stream stays ordered per partition.
type EventPublisher struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *slog.Logger
}

func NewEventPublisher(producer sarama.AsyncProducer, topic string, logger *slog.Logger) *EventPublisher {
	p := &EventPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger.With("component", "event_publisher"),
	}
	go p.drainErrors()
	return p
}

var _ gateway.EventSink = (*EventPublisher)(nil)

// Publish serializes the event envelope onto the audit topic.
func (p *EventPublisher) Publish(event *gateway.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal event", "type", event.Type, "error", err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(data),
	}
	if event.UserID != "" {
		msg.Key = sarama.StringEncoder(event.UserID)
	}

	select {
	case p.producer.Input() <- msg:
	default:
		p.logger.Warn("producer input full, dropping audit event", "type", event.Type)
	}
}

// Close flushes and shuts down the producer.
func (p *EventPublisher) Close() error {
	return p.producer.Close()
}

func (p *EventPublisher) drainErrors() {
	for err := range p.producer.Errors() {
		p.logger.Warn("audit publish failed", "topic", err.Msg.Topic, "error", err.Err)
	}
}
