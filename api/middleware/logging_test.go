package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
)

func requestLine(t *testing.T, h http.Handler, req *http.Request) map[string]any {
	t.Helper()
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Format: logger.FormatJSON, Output: buf})
	Logging(logg)(h).ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line), buf.String())
	return line
}

func TestLoggingRecordsStatusAndSize(t *testing.T) {
	line := requestLine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("hello"))
	}), httptest.NewRequest(http.MethodPost, "/bids", nil))

	assert.Equal(t, "request complete", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "POST", line["method"])
	assert.Equal(t, "/bids", line["path"])
	assert.EqualValues(t, http.StatusCreated, line["status"])
	assert.EqualValues(t, 5, line["bytes"])
}

func TestLoggingWarnsOnServerError(t *testing.T) {
	line := requestLine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}), httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, "warn", line["level"])
	assert.EqualValues(t, http.StatusServiceUnavailable, line["status"])
}

func TestLoggingDefaultsUnwrittenStatus(t *testing.T) {
	noop := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	line := requestLine(t, noop, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.EqualValues(t, http.StatusOK, line["status"])

	upgrade := httptest.NewRequest(http.MethodGet, "/ws/auctions/x", nil)
	upgrade.Header.Set("Upgrade", "websocket")
	line = requestLine(t, noop, upgrade)
	assert.EqualValues(t, http.StatusSwitchingProtocols, line["status"])
}

func TestLoggingWithoutLoggerPassesThrough(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	rec := httptest.NewRecorder()
	Logging(nil)(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
