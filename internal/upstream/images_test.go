package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newImageTestClient(t *testing.T, images map[string][]byte) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/auth/v3/tenant_access_token") {
			_ = json.NewEncoder(w).Encode(tokenResponse{TenantAccessToken: "tok", Expire: 3600})
			return
		}
		for tok, data := range images {
			if strings.HasSuffix(r.URL.Path, "/medias/"+tok+"/download") {
				_, _ = w.Write(data)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	return New(Config{BaseURL: srv.URL}, 5*time.Second, nil)
}

func TestDownloadImage_RejectsNonImageBody(t *testing.T) {
	c := newImageTestClient(t, map[string][]byte{"tok1": []byte("not an image")})

	_, err := c.DownloadImage(context.Background(), "tok1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a recognized image format")
}

func TestDownloadImage_AcceptsValidJPEGMagic(t *testing.T) {
	c := newImageTestClient(t, map[string][]byte{"tok1": {0xFF, 0xD8, 0xFF, 0xE0}})

	data, err := c.DownloadImage(context.Background(), "tok1")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xE0}, data)
}

func TestBatchDownloadImages_PerTokenErrorsDoNotAbortBatch(t *testing.T) {
	c := newImageTestClient(t, map[string][]byte{
		"good": {0xFF, 0xD8, 0xFF, 0xE0},
		// "bad" intentionally not registered -> 404
	})

	results := c.BatchDownloadImages(context.Background(), []string{"good", "bad"})

	require.Len(t, results, 2)
	assert.NoError(t, results["good"].Err)
	assert.Error(t, results["bad"].Err)
}
