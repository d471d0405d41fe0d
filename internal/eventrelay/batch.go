package eventrelay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox/registry"
)

const (
	outcomePublished    = "published"
	outcomeRetry        = "retry"
	outcomeDeadLettered = "dead_lettered"
	outcomeHeld         = "held"
)

// processBatch relays one batch inside a single transaction. It reports
// whether any rows were fetched.
func (r *Relay) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.repo.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		processed = true

		// a failed event holds back later events of the same aggregate so
		// subscribers never observe an auction's events out of order
		held := map[uuid.UUID]struct{}{}
		for _, event := range events {
			if _, ok := held[event.AggregateID]; ok {
				r.metrics.ObserveEvent(string(event.EventType), outcomeHeld)
				continue
			}
			outcome, hold, err := r.relay(ctx, tx, event)
			if err != nil {
				return err
			}
			r.metrics.ObserveEvent(string(event.EventType), outcome)
			if hold {
				held[event.AggregateID] = struct{}{}
			}
		}
		return nil
	})
	return processed, err
}

// relay publishes one row and records its outcome. hold reports that later
// rows of the same aggregate must wait. A returned error aborts the batch.
func (r *Relay) relay(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (outcome string, hold bool, err error) {
	resolved, err := r.registry.Resolve(event)
	if err != nil {
		return outcomeDeadLettered, false, r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, r.logFields(event, nil))
	}

	fields := r.logFields(event, resolved)
	err = r.publish(ctx, event, resolved)
	if err == nil {
		if markErr := r.repo.MarkPublishedTx(tx, event.ID); markErr != nil {
			return "", false, fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		r.logg.Info(r.logg.WithFields(ctx, fields), "outbox event published")
		return outcomePublished, false, nil
	}

	var nonRetryable registry.NonRetryableError
	if errors.As(err, &nonRetryable) {
		return outcomeDeadLettered, false, r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, fields)
	}

	attempt := event.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= r.maxAttempts {
		terminal := fmt.Errorf("max publish attempts reached: %w", err)
		// the broker may still hold the ordering key paused; later rows wait a batch
		return outcomeDeadLettered, true, r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, terminal, fields)
	}

	r.logg.Warn(r.logg.WithField(r.logg.WithFields(ctx, fields), "error", err.Error()), "outbox publish failed")
	if markErr := r.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
		return "", false, fmt.Errorf("mark failure %s: %w", event.ID, markErr)
	}
	return outcomeRetry, true, nil
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, err error, fields map[string]any) error {
	fields["error_reason"] = reason
	r.logg.Warn(r.logg.WithField(r.logg.WithFields(ctx, fields), "error", err.Error()), "outbox event dead-lettered")

	message := err.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &message,
		AttemptCount:  event.AttemptCount,
		FailedAt:      r.now().UTC(),
	}
	if dlqErr := r.dlq.InsertTx(tx, entry); dlqErr != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, dlqErr)
	}
	if markErr := r.repo.MarkTerminalTx(tx, event.ID, err, r.maxAttempts); markErr != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, markErr)
	}
	r.metrics.DeadLettered(string(reason))
	return nil
}

func (r *Relay) logFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if resolved != nil {
		fields["topic"] = resolved.Descriptor.Topic
		if envelope := resolved.Envelope; envelope.EventID != "" {
			fields["event_id"] = envelope.EventID
			fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
		}
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
