package livefeed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Frame types written to subscribers. Auction event frames use the outbox
// event type (bid_history_updated, price_updated, auction_ended).
const (
	FrameSubscribed = "subscribed"
	FramePong       = "pong"
	FrameError      = "error"
)

// Frame is the JSON document written to a websocket subscriber.
type Frame struct {
	Type       string          `json:"type"`
	ProductID  uuid.UUID       `json:"productId"`
	EventID    string          `json:"eventId,omitempty"`
	OccurredAt *time.Time      `json:"occurredAt,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// controlMessage is the only inbound shape subscribers may send.
type controlMessage struct {
	Type string `json:"type" validate:"required,oneof=ping"`
}

var controlValidator = validator.New()

func parseControl(raw []byte) (controlMessage, error) {
	var msg controlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return controlMessage{}, fmt.Errorf("malformed message")
	}
	msg.Type = strings.ToLower(strings.TrimSpace(msg.Type))
	if err := controlValidator.Struct(msg); err != nil {
		return controlMessage{}, fmt.Errorf("unsupported message type %q", msg.Type)
	}
	return msg, nil
}

func encodeFrame(frame Frame) ([]byte, error) {
	return json.Marshal(frame)
}
