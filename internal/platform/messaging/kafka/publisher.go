// Package kafka mirrors engine lifecycle events onto Kafka topics so other
// services can consume them as integration events.
package kafka

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/IBM/sarama"

	"github.com/Narcis13/workscript/internal/gateway/realtime"
	"github.com/Narcis13/workscript/internal/platform/logger"
)

// Config holds Kafka publisher configuration
type Config struct {
	Brokers     []string
	TopicPrefix string
}

// EventPublisher publishes execution events to Kafka.
type EventPublisher struct {
	producer sarama.AsyncProducer
	prefix   string
	log      logger.Logger
}

// NewEventPublisher creates an async publisher and starts draining its
// result channels.
func NewEventPublisher(cfg Config, log logger.Logger) (*EventPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "workscript"
	}
	if log == nil {
		log = logger.NewNop()
	}

	p := &EventPublisher{
		producer: producer,
		prefix:   prefix,
		log:      log,
	}

	go p.drainErrors()
	go p.drainSuccesses()

	return p, nil
}

// Attach subscribes the publisher to an event bus.
func (p *EventPublisher) Attach(bus *realtime.Bus) {
	bus.Subscribe(p.Publish)
}

// Publish mirrors one event. Delivery is asynchronous; failures are logged,
// never propagated back into the execution.
func (p *EventPublisher) Publish(event realtime.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn("failed to serialize event", "eventId", event.ID, "error", err)
		return
	}

	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: p.topicFor(event.Type),
		Key:   sarama.StringEncoder(event.ExecutionID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("eventType"), Value: []byte(event.Type)},
			{Key: []byte("workflowId"), Value: []byte(event.WorkflowID)},
		},
		Timestamp: event.Timestamp,
	}
}

// topicFor maps event types onto topics by their first segment:
// workscript.execution, workscript.node, workscript.state.
func (p *EventPublisher) topicFor(eventType realtime.EventType) string {
	segment := string(eventType)
	if idx := strings.Index(segment, "."); idx > 0 {
		segment = segment[:idx]
	}
	return p.prefix + "." + segment
}

func (p *EventPublisher) drainErrors() {
	for err := range p.producer.Errors() {
		p.log.Warn("kafka publish failed", "topic", err.Msg.Topic, "error", err.Err)
	}
}

func (p *EventPublisher) drainSuccesses() {
	for range p.producer.Successes() {
	}
}

// Close shuts the producer down.
func (p *EventPublisher) Close() error {
	return p.producer.Close()
}
