package gateway

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"comanda/pkg/logger"
)

// TokenFetcher performs the client-credentials grant.
type TokenFetcher interface {
	Fetch(ctx context.Context, clientID, clientSecret string) (*Token, error)
}

type cachedToken struct {
	secret string
	token  string
	until  time.Time
}

// TokenCache keeps one token per client id until shortly before it expires.
// Concurrent misses for the same client share a single grant.
type TokenCache struct {
	fetcher TokenFetcher
	skew    time.Duration
	timeout time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]cachedToken
	group   singleflight.Group
}

// NewTokenCache wraps fetcher. Tokens are dropped skew before their expiry.
// A shared grant is bounded by timeout and outlives the caller that started it.
func NewTokenCache(fetcher TokenFetcher, skew, timeout time.Duration) *TokenCache {
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &TokenCache{
		fetcher: fetcher,
		skew:    skew,
		timeout: timeout,
		now:     time.Now,
		entries: make(map[string]cachedToken),
	}
}

// GetToken returns a cached token or performs a grant.
// Tokens without an expiry are never cached. Each caller stops waiting when its
// own ctx is done; the grant itself is not cancelled by any single caller.
func (c *TokenCache) GetToken(ctx context.Context, clientID, clientSecret string) (string, error) {
	if tok, ok := c.lookup(clientID, clientSecret); ok {
		return tok, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ch := c.group.DoChan(clientID+"\x00"+clientSecret, func() (any, error) {
		if tok, ok := c.lookup(clientID, clientSecret); ok {
			return tok, nil
		}
		gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		tok, err := c.fetcher.Fetch(gctx, clientID, clientSecret)
		if err != nil {
			return "", err
		}
		c.store(gctx, clientID, clientSecret, tok)
		return tok.AccessToken, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate forgets the token of clientID, typically after the gateway
// answered 401 to a request that used it.
func (c *TokenCache) Invalidate(clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, clientID)
}

func (c *TokenCache) lookup(clientID, clientSecret string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[clientID]
	if !ok {
		return "", false
	}
	if e.secret != clientSecret || !c.now().Before(e.until) {
		delete(c.entries, clientID)
		return "", false
	}
	return e.token, true
}

func (c *TokenCache) store(ctx context.Context, clientID, clientSecret string, tok *Token) {
	if tok.Expiry.IsZero() {
		return
	}
	until := tok.Expiry.Add(-c.skew)
	if !c.now().Before(until) {
		logger.Debug(ctx, "gateway token expires within skew; not cached", "client_id", clientID)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[clientID] = cachedToken{secret: clientSecret, token: tok.AccessToken, until: until}
}
