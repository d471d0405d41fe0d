package enums

import "slices"

// OutboxAggregateType is the aggregate_type_enum. It doubles as the Pub/Sub
// ordering scope: every event of one aggregate is delivered in order.
type OutboxAggregateType string

const (
	AggregateProduct OutboxAggregateType = "product"
	AggregateOrder   OutboxAggregateType = "order"
)

var aggregateTypes = []OutboxAggregateType{AggregateProduct, AggregateOrder}

func (a OutboxAggregateType) IsValid() bool { return slices.Contains(aggregateTypes, a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", value, aggregateTypes)
}

// OutboxEventType is the event_type_enum.
type OutboxEventType string

const (
	EventBidHistoryUpdated OutboxEventType = "bid_history_updated"
	EventPriceUpdated      OutboxEventType = "price_updated"
	EventAuctionEnded      OutboxEventType = "auction_ended"
	EventOrderCreated      OutboxEventType = "order_created"
)

var eventTypes = []OutboxEventType{
	EventBidHistoryUpdated,
	EventPriceUpdated,
	EventAuctionEnded,
	EventOrderCreated,
}

func (e OutboxEventType) IsValid() bool { return slices.Contains(eventTypes, e) }

// Aggregate returns the aggregate an event type is keyed by.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	if e == EventOrderCreated {
		return AggregateOrder
	}
	return AggregateProduct
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", value, eventTypes)
}

// OutboxDLQErrorReason is the outbox_dlq_error_reason_enum.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts marks a row that kept failing transiently.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable marks a row no retry can fix: unknown type,
	// bad payload, or a topic with no publisher.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var dlqReasons = []OutboxDLQErrorReason{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}

func (r OutboxDLQErrorReason) IsValid() bool { return slices.Contains(dlqReasons, r) }
