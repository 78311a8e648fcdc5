// Package vehicledata looks vehicle registrations up against the external
// MOT history API.
package vehicledata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

const defaultSkew = 60 * time.Second

// TokenCache holds one client-credentials access token and refreshes it
// shortly before it expires. Concurrent callers that find the token stale
// share a single fetch.
type TokenCache struct {
	cfg  *clientcredentials.Config
	skew time.Duration
	now  func() time.Time

	mu  sync.Mutex
	tok *oauth2.Token

	group singleflight.Group
}

// NewTokenCache builds a cache for cfg. skew <= 0 selects 60s.
func NewTokenCache(cfg *clientcredentials.Config, skew time.Duration) *TokenCache {
	if skew <= 0 {
		skew = defaultSkew
	}
	return &TokenCache{cfg: cfg, skew: skew, now: time.Now}
}

// Token returns a bearer token valid for at least the skew interval.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if tok := c.cached(); tok != "" {
		return tok, nil
	}
	v, err, _ := c.group.Do("token", func() (any, error) {
		if tok := c.cached(); tok != "" {
			return tok, nil
		}
		// detached so one caller's cancellation does not fail the others
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		t, err := c.cfg.Token(fetchCtx)
		if err != nil {
			return "", fmt.Errorf("fetch access token: %w", err)
		}
		c.mu.Lock()
		c.tok = t
		c.mu.Unlock()
		return t.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token, forcing the next call to fetch.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.tok = nil
	c.mu.Unlock()
}

func (c *TokenCache) cached() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tok == nil || c.tok.AccessToken == "" {
		return ""
	}
	if !c.tok.Expiry.IsZero() && !c.now().Before(c.tok.Expiry.Add(-c.skew)) {
		return ""
	}
	return c.tok.AccessToken
}
