package eventrelay

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox/registry"
)

// TopicPublisher is the slice of a Pub/Sub publisher the relay needs.
type TopicPublisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) PublishResult
	// ResumePublish unpauses an ordering key after a failed publish.
	ResumePublish(orderingKey string)
}

type PublishResult interface {
	Get(ctx context.Context) (string, error)
}

// TopicPublisherFunc returns the publisher for a topic, or nil when none is configured.
type TopicPublisherFunc func(topic string) TopicPublisher

func brokerTopics(broker brokerClient) TopicPublisherFunc {
	return func(topic string) TopicPublisher {
		p := broker.Publisher(topic)
		if p == nil {
			return nil
		}
		return gcpPublisher{p}
	}
}

// newMessage carries the stored envelope untouched. Attributes let consumers
// route and deduplicate without decoding the body.
func newMessage(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: event.AggregateID.String(),
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func (r *Relay) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := r.topics(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	msg := newMessage(event, resolved)
	publishCtx, cancel := context.WithTimeout(ctx, r.publishTimeout)
	defer cancel()

	started := r.now()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	if _, err := result.Get(publishCtx); err != nil {
		pub.ResumePublish(msg.OrderingKey)
		return err
	}
	r.metrics.ObservePublish(r.now().Sub(started))
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) PublishResult {
	res := p.Publisher.Publish(ctx, msg)
	if res == nil {
		return nil
	}
	return gcpResult{res}
}

type gcpResult struct {
	*gcppubsub.PublishResult
}

func (r gcpResult) Get(ctx context.Context) (string, error) {
	if r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
