package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		out = append(out, entry)
	}
	return out
}

func TestErrorCarriesContextFieldsAndStack(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "auctions", Level: zerolog.DebugLevel, Format: FormatJSON, Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithProductID(ctx, "prod-1")
	ctx = log.WithBidderID(ctx, "bidder-9")
	log.Error(ctx, "bid rejected", errors.New("stale price"))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	entry := lines[0]
	assert.Equal(t, "auctions", entry["service"])
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "prod-1", entry["product_id"])
	assert.Equal(t, "bidder-9", entry["bidder_id"])
	assert.Equal(t, "stale price", entry["error"])
	assert.NotEmpty(t, entry["stack"])
}

func TestFieldsDoNotLeakIntoParentContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "auctions", Format: FormatJSON, Output: buf})

	parent := log.WithField(context.Background(), "job", "auction-finalization")
	child := log.WithFields(parent, map[string]any{"product_id": "p-1", "attempt": 2})
	log.Info(child, "finalized")
	log.Info(parent, "sweep complete")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "p-1", lines[0]["product_id"])
	assert.EqualValues(t, 2, lines[0]["attempt"])
	assert.Equal(t, "auction-finalization", lines[1]["job"])
	assert.NotContains(t, lines[1], "product_id")
}

func TestWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	quiet := New(Options{ServiceName: "t", Format: FormatJSON, Output: buf})
	quiet.Warn(context.Background(), "slow publish")
	assert.NotContains(t, buf.String(), `"stack"`)

	buf.Reset()
	loud := New(Options{ServiceName: "t", Format: FormatJSON, Output: buf, WarnStack: true})
	loud.Warn(context.Background(), "slow publish")
	assert.Contains(t, buf.String(), `"stack"`)
}

func TestDebugRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "t", Level: zerolog.InfoLevel, Format: FormatJSON, Output: buf})
	log.Debug(context.Background(), "hidden")
	assert.Zero(t, buf.Len())
}

func TestConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "t", Format: FormatConsole, Output: buf})
	log.Info(context.Background(), "livefeed ready")
	assert.Contains(t, buf.String(), "livefeed ready")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"invalid": zerolog.InfoLevel,
		" WARN ":  zerolog.WarnLevel,
		"debug":   zerolog.DebugLevel,
	}
	for input, want := range cases {
		assert.Equal(t, want, ParseLevel(input), "input %q", input)
	}
}
