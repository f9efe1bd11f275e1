package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c := New(Config{AppID: "app", Secret: "secret", BaseURL: srv.URL}, 5*time.Second, nil)
	return c, &calls
}

func TestGetAccessToken_RefreshesThenCaches(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(tokenResponse{TenantAccessToken: "tok-1", Expire: 3600})
	})

	tok, err := c.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	tok2, err := c.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok2)

	assert.Equal(t, int32(1), atomic.LoadInt32(calls), "second call should hit the cache, not the network")
}

func TestGetAccessToken_RefreshesAgainAfterSafetyWindowExpiry(t *testing.T) {
	first := true
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if first {
			first = false
			_ = json.NewEncoder(w).Encode(tokenResponse{TenantAccessToken: "tok-1", Expire: 30}) // within 60s safety window
			return
		}
		_ = json.NewEncoder(w).Encode(tokenResponse{TenantAccessToken: "tok-2", Expire: 3600})
	})

	tok, err := c.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	tok2, err := c.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok2)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestGetAccessToken_TerminalAPIErrorIsNotRetried(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(tokenResponse{Code: 99991663, Msg: "invalid app secret"})
	})

	_, err := c.GetAccessToken(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls), "a terminal upstream error must not be retried")
}

func TestGetAccessToken_TransientHTTPErrorIsRetriedUpToThreeTimes(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.GetAccessToken(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls), "retryUpstream caps at 3 attempts")
}

func TestLooksLikeImage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"jpeg magic", []byte{0xFF, 0xD8, 0x00, 0x00}, true},
		{"png magic", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, true},
		{"webp riff", append([]byte("RIFF\x00\x00\x00\x00"), []byte("WEBP")...), true},
		{"gif89a", []byte("GIF89a"), true},
		{"plain text", []byte("not an image"), false},
		{"too short", []byte{0xFF}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, looksLikeImage(tt.data))
		})
	}
}
