// Package upstream is the HTTP client for the external spreadsheet service
// ("the upstream"), per spec.md §4.A: cached tenant-token auth, paginated
// record listing, and attachment download.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Config is the subset of internal/config.Config the upstream client needs.
type Config struct {
	AppID    string
	Secret   string
	AppToken string
	TableID  string
	BaseURL  string
}

// tokenSafetyWindow is how far ahead of expiry a cached token is treated as
// stale, per spec.md §4.A "within a 60-second safety window before expiry".
const tokenSafetyWindow = 60 * time.Second

// pagePacing and batchPacing are the mandatory inter-request spacings from
// spec.md §5.
const (
	pagePacing  = 200 * time.Millisecond
	batchPacing = 500 * time.Millisecond
)

// Client talks to the upstream spreadsheet service.
type Client struct {
	cfg Config
	hc  *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	sf          singleflight.Group

	pageLimiter  *rate.Limiter
	batchLimiter *rate.Limiter

	log *slog.Logger
}

// New constructs a Client. timeout bounds each token and record call;
// DownloadImage uses imageDownloadTimeout instead. A context deadline that
// comes sooner ends a call earlier.
func New(cfg Config, timeout time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:          cfg,
		hc:           &http.Client{Timeout: timeout},
		pageLimiter:  rate.NewLimiter(rate.Every(pagePacing), 1),
		batchLimiter: rate.NewLimiter(rate.Every(batchPacing), 1),
		log:          log,
	}
}

type tokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"`
}

// GetAccessToken returns a cached tenant token, refreshing it if absent or
// within the safety window. Concurrent callers during a refresh share the
// same in-flight request via singleflight, matching the "only one refresh in
// flight" requirement in spec.md §5.
func (c *Client) GetAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && time.Until(c.tokenExpiry) > tokenSafetyWindow {
		tok := c.token
		c.mu.Unlock()
		return tok, nil
	}
	c.mu.Unlock()

	v, err, _ := c.sf.Do("refresh", func() (interface{}, error) {
		return c.refreshToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) refreshToken(ctx context.Context) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"app_id":     c.cfg.AppID,
		"app_secret": c.cfg.Secret,
	})

	op := func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.cfg.BaseURL+"/open-apis/auth/v3/tenant_access_token/internal",
			bytes.NewReader(body))
		if err != nil {
			return "", backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json; charset=utf-8")

		resp, err := c.hc.Do(req)
		if err != nil {
			return "", newNetworkError("getAccessToken", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			uerr := newHTTPError("getAccessToken", resp.StatusCode, resp.Status)
			if !uerr.Retryable() {
				return "", backoff.Permanent(uerr)
			}
			return "", uerr
		}

		var tr tokenResponse
		if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
			return "", backoff.Permanent(fmt.Errorf("upstream: decode token response: %w", err))
		}
		if tr.Code != 0 {
			return "", backoff.Permanent(&Error{Category: Terminal, Code: tr.Code, Message: tr.Msg, Op: "getAccessToken"})
		}

		c.mu.Lock()
		c.token = tr.TenantAccessToken
		c.tokenExpiry = time.Now().Add(time.Duration(tr.Expire) * time.Second)
		c.mu.Unlock()

		return tr.TenantAccessToken, nil
	}

	return retryUpstream(ctx, op)
}

// retryUpstream runs op with exponential backoff (base 1s, factor 2, 3
// attempts total), per spec.md §4.F / §7 retry policy shared by token
// refresh and page fetches.
func retryUpstream[T any](ctx context.Context, op backoff.Operation[T]) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(3),
	)
}
