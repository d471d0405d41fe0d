package livefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
	"github.com/angelmondragon/auctionhouse-backend/pkg/metrics"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox"
)

const (
	resultAck       = "ack"
	resultNack      = "nack"
	resultDuplicate = "duplicate"
	resultInvalid   = "invalid"
)

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type broadcaster interface {
	Broadcast(productID uuid.UUID, eventType string, msg []byte) int
}

type payloadDecoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error)
}

type relayGuard interface {
	MarkRelayed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
}

type ConsumerParams struct {
	Subscription receiver
	Hub          broadcaster
	Decoders     payloadDecoder
	Idempotency  relayGuard
	Metrics      *metrics.LiveFeedMetrics
	Logger       *logger.Logger
	// ConsumerName scopes idempotency keys. Each live feed instance reads its
	// own subscription, so the name must be unique per instance.
	ConsumerName string
}

// Consumer relays auction events from Pub/Sub to websocket subscribers.
type Consumer struct {
	subscription receiver
	hub          broadcaster
	decoders     payloadDecoder
	guard        relayGuard
	metrics      *metrics.LiveFeedMetrics
	logg         *logger.Logger
	name         string
}

func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Subscription == nil {
		return nil, errors.New("livefeed subscription is required")
	}
	if params.Hub == nil {
		return nil, errors.New("hub is required")
	}
	if params.Decoders == nil {
		return nil, errors.New("decoder registry is required")
	}
	if params.Idempotency == nil {
		return nil, errors.New("idempotency guard is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	name := strings.TrimSpace(params.ConsumerName)
	if name == "" {
		name = "livefeed"
	}
	return &Consumer{
		subscription: params.Subscription,
		hub:          params.Hub,
		decoders:     params.Decoders,
		guard:        params.Idempotency,
		metrics:      params.Metrics,
		logg:         params.Logger,
		name:         name,
	}, nil
}

type processResult struct {
	nack bool
}

// Run consumes until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if c.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type auctionEvent struct {
	eventID    uuid.UUID
	eventType  enums.OutboxEventType
	productID  uuid.UUID
	occurredAt time.Time
	version    int
	data       json.RawMessage
}

func (c *Consumer) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	fields := map[string]any{"message_id": msg.ID}
	logCtx := c.logg.WithFields(ctx, fields)

	event, err := parseAuctionEvent(msg)
	if err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "invalid livefeed envelope")
		c.metrics.Consumed(resultInvalid)
		return processResult{}
	}
	fields["event_id"] = event.eventID.String()
	fields["event_type"] = string(event.eventType)
	fields["product_id"] = event.productID.String()
	logCtx = c.logg.WithFields(ctx, fields)

	if _, err := c.decoders.Decode(event.eventType, event.version, event.data); err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "undecodable livefeed payload")
		c.metrics.Consumed(resultInvalid)
		return processResult{}
	}

	occurredAt := event.occurredAt
	frame, err := encodeFrame(Frame{
		Type:       string(event.eventType),
		ProductID:  event.productID,
		EventID:    event.eventID.String(),
		OccurredAt: &occurredAt,
		Data:       event.data,
	})
	if err != nil {
		c.logg.Error(logCtx, "encode livefeed frame", err)
		c.metrics.Consumed(resultInvalid)
		return processResult{}
	}

	first, err := c.guard.MarkRelayed(logCtx, c.name, event.eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		c.metrics.Consumed(resultNack)
		return processResult{nack: true}
	}
	if !first {
		c.logg.Debug(logCtx, "event already relayed")
		c.metrics.Consumed(resultDuplicate)
		return processResult{}
	}

	delivered := c.hub.Broadcast(event.productID, string(event.eventType), frame)
	c.logg.Debug(c.logg.WithField(logCtx, "delivered", delivered), "livefeed event relayed")
	c.metrics.Consumed(resultAck)
	return processResult{}
}

func parseAuctionEvent(msg *gcppubsub.Message) (*auctionEvent, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}

	eventType, err := enums.ParseOutboxEventType(strings.TrimSpace(msg.Attributes["event_type"]))
	if err != nil {
		return nil, fmt.Errorf("event_type: %w", err)
	}

	aggregateType, err := enums.ParseOutboxAggregateType(strings.TrimSpace(msg.Attributes["aggregate_type"]))
	if err != nil {
		return nil, fmt.Errorf("aggregate_type: %w", err)
	}
	if aggregateType != enums.AggregateProduct {
		return nil, fmt.Errorf("aggregate_type %s is not an auction", aggregateType)
	}

	productID, err := uuid.Parse(strings.TrimSpace(msg.Attributes["aggregate_id"]))
	if err != nil {
		return nil, fmt.Errorf("aggregate_id: %w", err)
	}

	rawEventID := strings.TrimSpace(stored.EventID)
	if rawEventID == "" {
		rawEventID = strings.TrimSpace(msg.Attributes["event_id"])
	}
	eventID, err := uuid.Parse(rawEventID)
	if err != nil {
		return nil, fmt.Errorf("event_id: %w", err)
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		if created := strings.TrimSpace(msg.Attributes["created_at"]); created != "" {
			if parsed, err := time.Parse(time.RFC3339Nano, created); err == nil {
				occurredAt = parsed
			}
		}
	}

	version := stored.Version
	if version <= 0 {
		version = 1
	}

	return &auctionEvent{
		eventID:    eventID,
		eventType:  eventType,
		productID:  productID,
		occurredAt: occurredAt.UTC(),
		version:    version,
		data:       stored.Data,
	}, nil
}
