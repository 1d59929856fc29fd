package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/gamedex/internal/config"
	"github.com/gamedex/internal/domain"
)

// ErrBatchNotApplied ends a consumer session whose batch could not be applied
var ErrBatchNotApplied = errors.New("collection command batch not applied")

// CommandHandler applies collection commands
type CommandHandler interface {
	ApplyCommands(ctx context.Context, commands []domain.CollectionCommand) (int, error)
}

// Consumer consumes collection commands from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	handler       CommandHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler CommandHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	return newConsumer(cfg, handler, consumerGroup, logger), nil
}

func newConsumer(cfg *config.KafkaConfig, handler CommandHandler, group sarama.ConsumerGroup, logger *slog.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		config:        cfg,
		handler:       handler,
		logger:        logger.With("component", "kafka_consumer"),
		consumerGroup: group,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}
}

// Start begins consuming commands and returns once the first session is set up
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.CommandsTopic,
		"group_id", c.config.GroupID,
	)

	first := c.ready
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ready := first
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.CommandsTopic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			if c.ctx.Err() != nil {
				return
			}

			ready = make(chan bool)
		}
	}()

	select {
	case <-first:
		c.logger.Info("Kafka consumer ready")
	case <-c.ctx.Done():
		return c.ctx.Err()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	err := c.consumerGroup.Close()
	c.wg.Wait()
	return err
}

// applyTimeout bounds one ApplyCommands call
const applyTimeout = 10 * time.Second

// apply hands a batch to the handler, retrying while the collection is still
// loading, and reports whether the batch was applied. The handler context is
// detached from shutdown so a batch already read is still applied on Stop.
func (c *Consumer) apply(batch []domain.CollectionCommand) bool {
	attempts := c.config.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), applyTimeout)
		applied, err := c.handler.ApplyCommands(ctx, batch)
		cancel()

		if err == nil {
			c.logger.Debug("processed batch", "batch_size", len(batch), "applied", applied)
			return true
		}
		if !errors.Is(err, domain.ErrCollectionNotReady) || attempt == attempts {
			c.logger.Error("failed to process batch", "error", err, "batch_size", len(batch), "attempt", attempt)
			return false
		}

		select {
		case <-time.After(c.config.RetryDelay):
		case <-c.ctx.Done():
			c.logger.Warn("stopped retrying batch on shutdown", "batch_size", len(batch))
			return false
		}
	}
	return false
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim batches commands from a topic partition. Offsets are marked
// only after the batch holding them has been applied; a batch that cannot be
// applied ends the session so its messages are delivered again.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	logger := h.consumer.logger

	batch := make([]domain.CollectionCommand, 0, cfg.BatchSize)
	var last *sarama.ConsumerMessage
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	processBatch := func() error {
		if len(batch) > 0 {
			if !h.consumer.apply(batch) {
				return fmt.Errorf("%w: %d commands up to offset %d", ErrBatchNotApplied, len(batch), last.Offset)
			}
			batch = batch[:0]
		}
		if last != nil {
			session.MarkMessage(last, "")
			last = nil
		}
		return nil
	}

	for {
		select {
		case <-session.Context().Done():
			return processBatch()

		case <-batchTimer.C:
			if err := processBatch(); err != nil {
				return err
			}
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				return processBatch()
			}
			last = message

			var cmd domain.CollectionCommand
			if err := json.Unmarshal(message.Value, &cmd); err != nil {
				logger.Warn("failed to unmarshal message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				continue
			}

			if err := cmd.Validate(); err != nil {
				logger.Warn("invalid collection command",
					"action", cmd.Action,
					"game_id", cmd.GameID,
				)
				continue
			}

			batch = append(batch, cmd)

			if len(batch) >= cfg.BatchSize {
				if err := processBatch(); err != nil {
					return err
				}
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}
