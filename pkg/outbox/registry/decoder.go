package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox"
)

// Decoder turns an envelope's data into a typed payload.
type Decoder func(data json.RawMessage) (any, error)

var errEmptyPayload = errors.New("payload is empty")

// decodeInto unmarshals data into a fresh value from factory. Empty and null
// bodies are rejected: every auction event carries a payload.
func decodeInto(factory func() interface{}, data json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, errEmptyPayload
	}
	target := factory()
	if target == nil {
		return nil, errors.New("payload factory returned nil")
	}
	if err := json.Unmarshal(trimmed, target); err != nil {
		return nil, err
	}
	return target, nil
}

// DecodeInto returns a Decoder backed by factory.
func DecodeInto(factory func() interface{}) Decoder {
	return func(data json.RawMessage) (any, error) {
		return decodeInto(factory, data)
	}
}

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry holds versioned payload decoders for consumers. A consumer
// that sees an event version it has no decoder for treats the message as
// invalid rather than guessing at the shape.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[decoderKey]Decoder
}

// NewDecoderRegistry registers a current-version decoder for each descriptor.
func NewDecoderRegistry(descs ...EventDescriptor) *DecoderRegistry {
	r := &DecoderRegistry{decoders: make(map[decoderKey]Decoder, len(descs))}
	for _, desc := range descs {
		if desc.PayloadFactory == nil {
			continue
		}
		r.decoders[decoderKey{desc.EventType, outbox.EnvelopeVersion}] = DecodeInto(desc.PayloadFactory)
	}
	return r
}

// Register adds a decoder for an event version. Replacing an existing
// decoder is an error.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder Decoder) error {
	if decoder == nil {
		return fmt.Errorf("nil decoder for %s@v%d", eventType, version)
	}
	if version < 1 {
		return fmt.Errorf("invalid version %d for %s", version, eventType)
	}
	key := decoderKey{eventType, version}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.decoders[key]; exists {
		return fmt.Errorf("decoder already registered for %s@v%d", eventType, version)
	}
	r.decoders[key] = decoder
	return nil
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (interface{}, error) {
	r.mu.RLock()
	decoder, ok := r.decoders[decoderKey{eventType, version}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
	}
	payload, err := decoder(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s@v%d: %w", eventType, version, err)
	}
	return payload, nil
}

// Versions lists the registered versions of an event type, ascending.
func (r *DecoderRegistry) Versions(eventType enums.OutboxEventType) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var versions []int
	for key := range r.decoders {
		if key.eventType == eventType {
			versions = append(versions, key.version)
		}
	}
	slices.Sort(versions)
	return versions
}
