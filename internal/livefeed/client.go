package livefeed

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
)

const maxInboundMessageBytes = 512

// client is one websocket subscriber watching a single auction.
type client struct {
	id        string
	productID uuid.UUID
	conn      *websocket.Conn
	send      chan []byte
	limiter   *rate.Limiter
	hub       *Hub
	logg      *logger.Logger

	writeTimeout time.Duration
	pongTimeout  time.Duration

	mu     sync.Mutex
	closed bool
}

// enqueue hands a frame to the write pump without blocking. A full buffer
// reports false so the hub can evict the subscriber.
func (c *client) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// close stops the write pump. Safe to call more than once.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *client) pingPeriod() time.Duration {
	return c.pongTimeout * 9 / 10
}

func (c *client) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logg.Debug(c.logg.WithField(ctx, "error", err.Error()), "livefeed write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump keeps the read deadline alive and answers control messages. It
// owns unsubscription once the peer goes away.
func (c *client) readPump(ctx context.Context) {
	defer func() {
		c.hub.leave(c)
		c.close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logg.Debug(c.logg.WithField(ctx, "error", err.Error()), "livefeed connection dropped")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))

		if !c.limiter.Allow() {
			c.reply(ctx, Frame{Type: FrameError, ProductID: c.productID, Error: "rate limit exceeded"})
			continue
		}
		if _, err := parseControl(raw); err != nil {
			c.reply(ctx, Frame{Type: FrameError, ProductID: c.productID, Error: err.Error()})
			continue
		}
		c.reply(ctx, Frame{Type: FramePong, ProductID: c.productID})
	}
}

func (c *client) reply(ctx context.Context, frame Frame) {
	msg, err := encodeFrame(frame)
	if err != nil {
		c.logg.Error(ctx, "encode livefeed frame", err)
		return
	}
	if !c.enqueue(msg) {
		c.logg.Debug(ctx, "livefeed reply dropped")
	}
}
