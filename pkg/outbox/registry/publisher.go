package registry

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/auctionhouse-backend/pkg/config"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry with the configured topic names.
// Auction events feed the live feed; order events feed the payment flow.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.AuctionTopic == "" {
		return nil, fmt.Errorf("auction topic is required")
	}
	if cfg.OrdersTopic == "" {
		return nil, fmt.Errorf("orders topic is required")
	}

	routes := []struct {
		topic   string
		event   enums.OutboxEventType
		payload func() interface{}
	}{
		{cfg.AuctionTopic, enums.EventBidHistoryUpdated, func() interface{} { return &payloads.BidHistoryUpdatedEvent{} }},
		{cfg.AuctionTopic, enums.EventPriceUpdated, func() interface{} { return &payloads.PriceUpdatedEvent{} }},
		{cfg.AuctionTopic, enums.EventAuctionEnded, func() interface{} { return &payloads.AuctionEndedEvent{} }},
		{cfg.OrdersTopic, enums.EventOrderCreated, func() interface{} { return &payloads.OrderCreatedEvent{} }},
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(routes))}
	for _, route := range routes {
		reg.register(EventDescriptor{
			EventType:      route.event,
			AggregateType:  route.event.Aggregate(),
			Topic:          route.topic,
			PayloadFactory: route.payload,
		})
	}
	return reg, nil
}

// Topics lists every topic the registry routes to, sorted.
func (r *EventRegistry) Topics() []string {
	topics := map[string]struct{}{}
	for _, desc := range r.entries {
		topics[desc.Topic] = struct{}{}
	}
	return slices.Sorted(maps.Keys(topics))
}

// DescriptorsForTopic returns the descriptors routed to topic, ordered by event type.
func (r *EventRegistry) DescriptorsForTopic(topic string) []EventDescriptor {
	descs := []EventDescriptor{}
	for _, desc := range r.entries {
		if desc.Topic == topic {
			descs = append(descs, desc)
		}
	}
	slices.SortFunc(descs, func(a, b EventDescriptor) int {
		return strings.Compare(string(a.EventType), string(b.EventType))
	})
	return descs
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}

	payload, err := decodeInto(desc.PayloadFactory, envelope.Data)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
