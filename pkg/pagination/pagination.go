package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultLimit is the page size used when a caller does not ask for one.
	DefaultLimit = 25
	// MaxLimit caps how many rows a single page can return.
	MaxLimit = 100
)

// Params holds keyset pagination inputs.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor positions a page after a (created_at, id) key, newest first.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// SequenceCursor positions a page after a ledger sequence number.
type SequenceCursor struct {
	After int64
}

// NormalizeLimit enforces DefaultLimit and MaxLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer asks for one extra row so callers can tell whether a next page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// Trim cuts a buffered result down to limit rows. The second value reports
// whether rows were dropped, which means another page exists.
func Trim[T any](rows []T, limit int) ([]T, bool) {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return rows, false
	}
	return rows[:limit], true
}

// EncodeCursor builds an opaque cursor from a time key.
func EncodeCursor(cursor Cursor) string {
	payload := fmt.Sprintf("t|%s|%s", cursor.CreatedAt.UTC().Format(time.RFC3339Nano), cursor.ID.String())
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// ParseCursor returns nil for an empty value.
func ParseCursor(value string) (*Cursor, error) {
	parts, err := decode(value, "t", 3)
	if err != nil || parts == nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	id, err := uuid.Parse(parts[2])
	if err != nil {
		return nil, fmt.Errorf("invalid cursor id: %w", err)
	}
	return &Cursor{CreatedAt: t, ID: id}, nil
}

// EncodeSequenceCursor builds an opaque cursor from a sequence key.
func EncodeSequenceCursor(cursor SequenceCursor) string {
	payload := "s|" + strconv.FormatInt(cursor.After, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// ParseSequenceCursor returns nil for an empty value.
func ParseSequenceCursor(value string) (*SequenceCursor, error) {
	parts, err := decode(value, "s", 2)
	if err != nil || parts == nil {
		return nil, err
	}
	after, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || after < 0 {
		return nil, fmt.Errorf("invalid cursor sequence %q", parts[1])
	}
	return &SequenceCursor{After: after}, nil
}

func decode(value, kind string, fields int) ([]string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", fields)
	if len(parts) != fields || parts[0] != kind {
		return nil, fmt.Errorf("invalid cursor format")
	}
	return parts, nil
}
