package livefeed

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/angelmondragon/auctionhouse-backend/api/responses"
	"github.com/angelmondragon/auctionhouse-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
)

// ProductIDParam is the chi URL parameter naming the watched auction.
const ProductIDParam = "productID"

const (
	defaultWriteTimeout = 10 * time.Second
	defaultPongTimeout  = 60 * time.Second
	defaultSendBuffer   = 32
)

// Handler upgrades GET requests into auction subscriptions.
type Handler struct {
	hub      *Hub
	logg     *logger.Logger
	upgrader websocket.Upgrader

	writeTimeout time.Duration
	pongTimeout  time.Duration
	sendBuffer   int
	inboundRate  rate.Limit
	inboundBurst int
}

func NewHandler(hub *Hub, cfg config.LiveFeedConfig, logg *logger.Logger) (*Handler, error) {
	if hub == nil {
		return nil, errors.New("hub is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	h := &Handler{
		hub:          hub,
		logg:         logg,
		writeTimeout: cfg.WriteTimeout,
		pongTimeout:  cfg.PongTimeout,
		sendBuffer:   cfg.SendBuffer,
		inboundRate:  rate.Limit(cfg.InboundRate),
		inboundBurst: cfg.InboundBurst,
	}
	if h.writeTimeout <= 0 {
		h.writeTimeout = defaultWriteTimeout
	}
	if h.pongTimeout <= 0 {
		h.pongTimeout = defaultPongTimeout
	}
	if h.sendBuffer <= 0 {
		h.sendBuffer = defaultSendBuffer
	}
	if h.inboundRate <= 0 {
		h.inboundRate = 1
	}
	if h.inboundBurst <= 0 {
		h.inboundBurst = 3
	}

	allowed := cfg.AllowedOrigins()
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowed),
	}
	return h, nil
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, candidate := range allowed {
			if strings.EqualFold(candidate, origin) {
				return true
			}
		}
		return false
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, ProductIDParam)))
	if err != nil {
		responses.WriteError(ctx, h.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid product id"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the failure response
		h.logg.Warn(h.logg.WithField(ctx, "error", err.Error()), "livefeed upgrade failed")
		return
	}

	c := &client{
		id:           uuid.NewString(),
		productID:    productID,
		conn:         conn,
		send:         make(chan []byte, h.sendBuffer),
		limiter:      rate.NewLimiter(h.inboundRate, h.inboundBurst),
		hub:          h.hub,
		logg:         h.logg,
		writeTimeout: h.writeTimeout,
		pongTimeout:  h.pongTimeout,
	}

	// pumps outlive the request context
	connCtx := h.logg.WithProductID(context.WithoutCancel(ctx), productID.String())
	connCtx = h.logg.WithField(connCtx, "client_id", c.id)

	if err := h.hub.join(c); err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "shutting down"))
		_ = conn.Close()
		return
	}
	c.reply(connCtx, Frame{Type: FrameSubscribed, ProductID: productID})
	h.logg.Info(h.logg.WithField(connCtx, "subscribers", h.hub.Subscribers(productID)), "livefeed subscriber joined")

	go c.writePump(connCtx)
	go c.readPump(connCtx)
}
