package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const imageBatchConcurrency = 5

// imageDownloadTimeout bounds one DownloadImage call in place of the
// client's per-call timeout.
const imageDownloadTimeout = 60 * time.Second

// DownloadImage fetches one attachment's bytes and validates that they
// start with a known image magic, per spec.md §4.A.
func (c *Client) DownloadImage(ctx context.Context, fileToken string) ([]byte, error) {
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/open-apis/drive/v1/medias/%s/download", fileToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	hc := *c.hc
	hc.Timeout = imageDownloadTimeout
	resp, err := hc.Do(req)
	if err != nil {
		return nil, newNetworkError("downloadImage", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, newHTTPError("downloadImage", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newNetworkError("downloadImage", err)
	}
	if len(data) == 0 {
		return nil, &Error{Category: Terminal, Message: "empty image body", Op: "downloadImage"}
	}
	if !looksLikeImage(data) {
		return nil, &Error{Category: Terminal, Message: "response is not a recognized image format", Op: "downloadImage"}
	}

	return data, nil
}

// looksLikeImage checks the magic bytes spec.md §4.A names: JPEG FF D8, the
// 8-byte PNG signature, RIFF....WEBP, and GIF87a/GIF89a.
func looksLikeImage(data []byte) bool {
	switch {
	case len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8:
		return true
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return true
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return true
	case len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))):
		return true
	default:
		return false
	}
}

// BatchResult pairs a file token with its downloaded bytes or error.
type BatchResult struct {
	Token string
	Bytes []byte
	Err   error
}

// BatchDownloadImages fetches a set of attachments with concurrency ≤5 and
// ≥500ms spacing between batches, per spec.md §4.A. Per-token errors never
// abort the whole batch.
func (c *Client) BatchDownloadImages(ctx context.Context, tokens []string) map[string]BatchResult {
	results := make(map[string]BatchResult, len(tokens))
	var mu sync.Mutex

	for start := 0; start < len(tokens); start += imageBatchConcurrency {
		if err := c.batchLimiter.Wait(ctx); err != nil {
			break
		}

		end := start + imageBatchConcurrency
		if end > len(tokens) {
			end = len(tokens)
		}
		chunk := tokens[start:end]

		g, gctx := errgroup.WithContext(ctx)
		for _, tok := range chunk {
			tok := tok
			g.Go(func() error {
				data, err := c.DownloadImage(gctx, tok)
				mu.Lock()
				results[tok] = BatchResult{Token: tok, Bytes: data, Err: err}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		select {
		case <-ctx.Done():
			return results
		default:
		}
	}

	return results
}
