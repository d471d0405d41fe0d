package livefeed

import (
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
	"github.com/angelmondragon/auctionhouse-backend/pkg/metrics"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "livefeed-test", Output: io.Discard})
}

func newTestClient(hub *Hub, productID uuid.UUID, buffer int) *client {
	return &client{
		id:        uuid.NewString(),
		productID: productID,
		send:      make(chan []byte, buffer),
		hub:       hub,
		logg:      hub.logg,
	}
}

func TestHubBroadcastReachesOnlyTheAuctionRoom(t *testing.T) {
	hub, err := NewHub(testLogger(), nil)
	require.NoError(t, err)
	watched, other := uuid.New(), uuid.New()

	a := newTestClient(hub, watched, 4)
	b := newTestClient(hub, watched, 4)
	c := newTestClient(hub, other, 4)
	for _, cl := range []*client{a, b, c} {
		require.NoError(t, hub.join(cl))
	}

	delivered := hub.Broadcast(watched, "price_updated", []byte(`{"type":"price_updated"}`))
	require.Equal(t, 2, delivered)
	require.Len(t, a.send, 1)
	require.Len(t, b.send, 1)
	require.Len(t, c.send, 0)
	require.Equal(t, 2, hub.Subscribers(watched))
}

func TestHubDropsSlowSubscribers(t *testing.T) {
	reg := prometheus.NewRegistry()
	hub, err := NewHub(testLogger(), metrics.NewLiveFeedMetrics(reg))
	require.NoError(t, err)
	productID := uuid.New()

	fast := newTestClient(hub, productID, 4)
	slow := newTestClient(hub, productID, 1)
	require.NoError(t, hub.join(fast))
	require.NoError(t, hub.join(slow))

	require.Equal(t, 2, hub.Broadcast(productID, "price_updated", []byte("1")))
	require.Equal(t, 1, hub.Broadcast(productID, "price_updated", []byte("2")))

	require.Equal(t, 1, hub.Subscribers(productID))
	require.True(t, slow.closed)
	require.False(t, slow.enqueue([]byte("3")))

	expected := `
		# HELP auctionhouse_livefeed_messages_dropped_total Messages dropped because a subscriber's buffer was full.
		# TYPE auctionhouse_livefeed_messages_dropped_total counter
		auctionhouse_livefeed_messages_dropped_total 1
		# HELP auctionhouse_livefeed_connections Open websocket connections.
		# TYPE auctionhouse_livefeed_connections gauge
		auctionhouse_livefeed_connections 1
	`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"auctionhouse_livefeed_messages_dropped_total", "auctionhouse_livefeed_connections"))
}

func TestHubLeaveIsIdempotent(t *testing.T) {
	hub, err := NewHub(testLogger(), nil)
	require.NoError(t, err)
	productID := uuid.New()
	cl := newTestClient(hub, productID, 1)
	require.NoError(t, hub.join(cl))

	hub.leave(cl)
	hub.leave(cl)
	require.Equal(t, 0, hub.Subscribers(productID))
	require.Equal(t, 0, hub.Broadcast(productID, "price_updated", []byte("x")))
}

func TestHubCloseDisconnectsEveryone(t *testing.T) {
	hub, err := NewHub(testLogger(), nil)
	require.NoError(t, err)
	productID := uuid.New()
	cl := newTestClient(hub, productID, 1)
	require.NoError(t, hub.join(cl))

	hub.Close()
	hub.Close()

	_, open := <-cl.send
	require.False(t, open)
	require.ErrorIs(t, hub.join(newTestClient(hub, productID, 1)), errHubClosed)
}
