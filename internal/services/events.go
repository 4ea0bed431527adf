// Package services orchestrates ledger operations across the store, the audit
// recorder and the event publisher.
package services

import (
	"context"
	"log/slog"

	"payledger/internal/amqp"
)

// EventPublisher sends ledger events after commit. *amqp.Client satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, event *amqp.LedgerEvent) error
}

// publish never fails the caller: the transaction has already committed.
func publish(ctx context.Context, pub EventPublisher, event *amqp.LedgerEvent) {
	if pub == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping ledger event", "type", event.Type)
		return
	}
	if err := pub.Publish(ctx, event); err != nil {
		slog.WarnContext(ctx, "Failed to publish ledger event",
			"type", event.Type,
			"entity_id", event.EntityID,
			"error", err)
	}
}
