package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/auctionhouse-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	tests := []struct {
		project, kind, name string
		want                string
	}{
		{"p1", "topics", " auction-events ", "projects/p1/topics/auction-events"},
		{"p1", "subscriptions", "livefeed", "projects/p1/subscriptions/livefeed"},
		{"p1", "topics", "projects/other/topics/auction-events", "projects/other/topics/auction-events"},
		{"p1", "topics", "projects/other/subscriptions/x", "projects/p1/topics/projects/other/subscriptions/x"},
		{"p1", "topics", "", ""},
		{"", "topics", "auction-events", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resourceName(tt.project, tt.kind, tt.name), tt.name)
	}
}

func TestNewClientResolvesConfiguredResources(t *testing.T) {
	c := newClient(nil, "p1", config.PubSubConfig{
		AuctionTopic:         "auction-events",
		OrdersTopic:          "projects/p1/topics/auction-events",
		OrdersSubscription:   " orders-sub ",
		LiveFeedSubscription: "livefeed-sub",
	})

	assert.Equal(t, []string{"projects/p1/topics/auction-events"}, c.topics)
	assert.Equal(t, []string{
		"projects/p1/subscriptions/orders-sub",
		"projects/p1/subscriptions/livefeed-sub",
	}, c.subscriptions)
	assert.Equal(t, "projects/p1/subscriptions/livefeed-sub", c.liveFeed)
}

func TestUninitializedClient(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("auction-events"))
	assert.Nil(t, c.LiveFeedSubscription())
	assert.NoError(t, c.Close())
	assert.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)

	unwired := newClient(nil, "p1", config.PubSubConfig{LiveFeedSubscription: "livefeed"})
	assert.Nil(t, unwired.Publisher("auction-events"))
	assert.Nil(t, unwired.LiveFeedSubscription())
	assert.ErrorIs(t, unwired.Ping(context.Background()), errNotInitialized)
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{ProjectID: " "}, config.PubSubConfig{}, nil)
	assert.ErrorIs(t, err, errProjectIDRequired)
}
