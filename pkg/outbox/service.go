package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
)

// DomainEvent is a state change to deliver once the surrounding transaction
// commits. The aggregate type follows from EventType.
type DomainEvent struct {
	EventType   enums.OutboxEventType
	AggregateID uuid.UUID
	Actor       *ActorRef
	Data        interface{}
	// Version is the payload schema version; zero means 1.
	Version    int
	OccurredAt time.Time
}

// Service writes domain events into outbox_events inside the caller's
// transaction.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit queues events in the given order. The rows share one created_at and
// take time-ordered v7 ids, so the relay's (created_at, id) scan returns them
// in emit order.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, events ...DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if len(events) == 0 {
		return nil
	}
	createdAt := s.now().UTC()
	rows := make([]models.OutboxEvent, 0, len(events))
	for _, event := range events {
		row, err := s.row(event, createdAt)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if err := s.repo.InsertAll(tx, rows); err != nil {
		return fmt.Errorf("queue outbox events: %w", err)
	}

	if s.logg != nil {
		for _, row := range rows {
			s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
				"outbox_id":    row.ID.String(),
				"event_type":   row.EventType,
				"aggregate_id": row.AggregateID.String(),
			}), "outbox event queued")
		}
	}
	return nil
}

func (s *Service) row(event DomainEvent, createdAt time.Time) (models.OutboxEvent, error) {
	if !event.EventType.IsValid() {
		return models.OutboxEvent{}, fmt.Errorf("unknown event type %q", event.EventType)
	}
	if event.AggregateID == uuid.Nil {
		return models.OutboxEvent{}, fmt.Errorf("%s: aggregate id required", event.EventType)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = createdAt
	}
	envelope, err := newEnvelope(event)
	if err != nil {
		return models.OutboxEvent{}, err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return models.OutboxEvent{}, err
	}
	return models.OutboxEvent{
		ID:            id,
		EventType:     event.EventType,
		AggregateType: event.EventType.Aggregate(),
		AggregateID:   event.AggregateID,
		Payload:       payload,
		CreatedAt:     createdAt,
	}, nil
}
