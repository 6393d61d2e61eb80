package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"procodus.dev/gridloss/pkg/metrics"
	"procodus.dev/gridloss/pkg/mq"
)

// Publisher pushes alert events onto a queue.
type Publisher struct {
	client  mq.ClientInterface
	logger  *slog.Logger
	metrics *metrics.BackendMetrics // Optional metrics
}

// NewPublisher creates a Publisher on top of client.
func NewPublisher(client mq.ClientInterface, logger *slog.Logger) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("mq client cannot be nil")
	}

	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Publisher{client: client, logger: logger}, nil
}

// SetMetrics sets the metrics collector for the publisher.
func (p *Publisher) SetMetrics(m *metrics.BackendMetrics) {
	p.metrics = m
}

// Publish encodes ev and waits for the broker to confirm it.
func (p *Publisher) Publish(ctx context.Context, ev AlertEvent) error {
	data, err := Encode(ev)
	if err != nil {
		p.count(ev.Kind, "error")
		return err
	}

	if err := p.client.Push(ctx, data); err != nil {
		p.count(ev.Kind, "error")
		return fmt.Errorf("failed to publish %s for alert %d: %w", ev.Kind, ev.AlertID, err)
	}

	p.count(ev.Kind, "success")
	p.logger.Debug("alert event published", "kind", ev.Kind, "alert_id", ev.AlertID)
	return nil
}

// Close closes the underlying client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

func (p *Publisher) count(kind Kind, status string) {
	if p.metrics != nil {
		p.metrics.EventsPublished.WithLabelValues(string(kind), status).Inc()
	}
}
