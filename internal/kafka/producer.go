package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/gamedex/internal/config"
	"github.com/gamedex/internal/domain"
)

// EventPublisher publishes collection events to Kafka, keyed by game id so
// events for one game stay ordered within a partition
type EventPublisher struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *slog.Logger
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewEventPublisher creates a new Kafka event publisher
func NewEventPublisher(cfg *config.KafkaConfig, logger *slog.Logger) (*EventPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Flush.Frequency = 100 * time.Millisecond
	saramaConfig.Producer.Return.Successes = false
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Retry.Max = cfg.RetryAttempts
	saramaConfig.Producer.Retry.Backoff = cfg.RetryDelay

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, err
	}

	return newEventPublisher(producer, cfg.EventsTopic, logger), nil
}

func newEventPublisher(producer sarama.AsyncProducer, topic string, logger *slog.Logger) *EventPublisher {
	p := &EventPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger.With("component", "kafka_publisher"),
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for err := range producer.Errors() {
			p.logger.Error("failed to publish collection event", "topic", p.topic, "error", err.Err)
		}
	}()

	return p
}

// CollectionChanged queues the event for publishing
func (p *EventPublisher) CollectionChanged(ctx context.Context, event domain.CollectionEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal collection event", "error", err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(event.GameID, 10)),
		Value: sarama.ByteEncoder(data),
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}

	select {
	case p.producer.Input() <- msg:
	case <-ctx.Done():
		p.logger.Warn("dropped collection event", "game_id", event.GameID, "error", ctx.Err())
	}
}

// Close flushes pending events and shuts the producer down
func (p *EventPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.producer.AsyncClose()
	p.wg.Wait()
	return nil
}
