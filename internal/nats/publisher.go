package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/gamedex/internal/config"
	"github.com/gamedex/internal/domain"
)

// Conn is the subset of *nats.Conn the publisher needs
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher publishes collection events on a NATS subject. Events go to
// <subject>.<type>, e.g. gamedex.collection.added.
type Publisher struct {
	conn    Conn
	subject string
	logger  *slog.Logger
}

// Connect dials NATS and returns a publisher for cfg.Subject
func Connect(cfg *config.NATSConfig, logger *slog.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("gamedex collection events"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	}

	// if token provided
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	return NewPublisher(conn, cfg.Subject, logger), nil
}

// NewPublisher creates a publisher over an existing connection
func NewPublisher(conn Conn, subject string, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:    conn,
		subject: subject,
		logger:  logger.With("component", "nats_publisher"),
	}
}

// Subject returns the subject an event is published on
func (p *Publisher) Subject(event domain.CollectionEvent) string {
	return p.subject + "." + event.Type
}

// CollectionChanged publishes the event. Failures are logged.
func (p *Publisher) CollectionChanged(ctx context.Context, event domain.CollectionEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal collection event", "error", err)
		return
	}

	subject := p.Subject(event)
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Error("failed to publish collection event", "subject", subject, "game_id", event.GameID, "error", err)
	}
}

// Close drains pending messages and closes the connection
func (p *Publisher) Close() error {
	return p.conn.Drain()
}
