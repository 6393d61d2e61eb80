package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"procodus.dev/gridloss/pkg/mq"
)

// Handler processes one decoded event. Returning an error nacks the delivery.
type Handler func(ctx context.Context, ev AlertEvent) error

// Subscribe consumes events from client until ctx ends or the delivery channel
// closes. Malformed payloads are dropped without requeue; handler errors are
// requeued once.
func Subscribe(ctx context.Context, client mq.ClientInterface, logger *slog.Logger, handle Handler) error {
	if handle == nil {
		return errors.New("handler cannot be nil")
	}

	deliveries, err := client.Consume()
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}

			ev, err := Decode(d.Body)
			if err != nil {
				logger.Warn("dropping malformed event", "error", err)
				_ = d.Nack(false, false)
				continue
			}

			if err := handle(ctx, ev); err != nil {
				logger.Error("failed to handle event", "alert_id", ev.AlertID, "error", err)
				_ = d.Nack(false, !d.Redelivered)
				continue
			}

			_ = d.Ack(false)
		}
	}
}
