package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
)

type fakeConnectStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (f *fakeConnectStore) ConnectAllow(_ context.Context, clientID string, limit int64, _ time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[clientID]++
	return f.counts[clientID] <= limit, nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func connect(h http.Handler, remote string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ws/auctions/x", nil)
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestConnectRateLimitBlocksAfterLimit(t *testing.T) {
	handler := ConnectRateLimit(&fakeConnectStore{}, 2, time.Minute, nil)(okHandler())

	assert.Equal(t, http.StatusOK, connect(handler, "1.2.3.4:5678", nil).Code)
	assert.Equal(t, http.StatusOK, connect(handler, "1.2.3.4:5679", nil).Code)

	rec := connect(handler, "1.2.3.4:5680", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, string(pkgerrors.CodeRateLimit), payload.Error.Code)
}

func TestConnectRateLimitKeysOnForwardedIP(t *testing.T) {
	store := &fakeConnectStore{}
	handler := ConnectRateLimit(store, 1, time.Minute, nil)(okHandler())

	for _, ip := range []string{"9.9.9.9", "8.8.8.8"} {
		rec := connect(handler, "10.0.0.1:1234", map[string]string{"X-Forwarded-For": ip + ", 10.0.0.1"})
		assert.Equal(t, http.StatusOK, rec.Code, ip)
	}
	assert.Equal(t, map[string]int64{"9.9.9.9": 1, "8.8.8.8": 1}, store.counts)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"peer", "1.2.3.4:80", nil, "1.2.3.4"},
		{"forwarded", "10.0.0.1:80", map[string]string{"X-Forwarded-For": " 5.6.7.8 , 10.0.0.1"}, "5.6.7.8"},
		{"garbage forwarded falls through", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "unknown", "X-Real-IP": "7.7.7.7"}, "7.7.7.7"},
		{"mapped v4", "[::ffff:1.2.3.4]:80", nil, "1.2.3.4"},
		{"v6 peer", "[2001:db8::1]:443", nil, "2001:db8::1"},
		{"unparseable", "pipe", nil, "pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}

func TestConnectRateLimitStoreFailure(t *testing.T) {
	handler := ConnectRateLimit(&fakeConnectStore{err: errors.New("redis down")}, 1, time.Minute, nil)(okHandler())
	assert.Equal(t, http.StatusServiceUnavailable, connect(handler, "1.2.3.4:1", nil).Code)
}

func TestConnectRateLimitDisabledWithoutLimit(t *testing.T) {
	store := &fakeConnectStore{}
	handler := ConnectRateLimit(store, 0, time.Minute, nil)(okHandler())
	assert.Equal(t, http.StatusOK, connect(handler, "1.2.3.4:1", nil).Code)
	assert.Empty(t, store.counts)
}
