// Package gateway talks to the fiscal gateway: the OAuth2 client-credentials
// grant, a token cache and the NFC-e emission endpoint.
package gateway

import (
	"net/http"
	"strings"
	"time"
)

// Config holds gateway endpoints and client behavior.
type Config struct {
	// AuthURL is the authorization host; the token endpoint is AuthURL + "/oauth/token".
	AuthURL string
	// APIURL is the API host; documents are posted to APIURL + "/nfe/emissoes".
	APIURL string
	// Scope requested in the client-credentials grant.
	Scope string
	// Timeout bounds every request to the gateway.
	Timeout time.Duration
	// RatePerSecond and Burst limit outbound emissions; zero disables the limit.
	RatePerSecond float64
	Burst         int
	// TokenSkew is subtracted from token expiry when caching.
	TokenSkew time.Duration
}

// DefaultConfig returns the defaults used when the environment sets nothing.
func DefaultConfig() Config {
	return Config{
		Scope:         "nfce",
		Timeout:       20 * time.Second,
		RatePerSecond: 10,
		Burst:         5,
		TokenSkew:     30 * time.Second,
	}
}

func (c Config) tokenURL() string {
	return strings.TrimRight(c.AuthURL, "/") + "/oauth/token"
}

func (c Config) emissionURL() string {
	return strings.TrimRight(c.APIURL, "/") + "/nfe/emissoes"
}

func (c Config) httpClient() *http.Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &http.Client{Timeout: timeout}
}
