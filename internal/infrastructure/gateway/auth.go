package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"comanda/internal/core/apperror"
	"comanda/pkg/logger"
)

// Token is a bearer token and its expiry (zero when the gateway sent none).
type Token struct {
	AccessToken string
	Expiry      time.Time
}

// Authenticator performs the client-credentials grant. It never retries and
// never caches; see TokenCache.
type Authenticator struct {
	cfg        Config
	httpClient *http.Client
}

// NewAuthenticator creates an authenticator for cfg.
func NewAuthenticator(cfg Config) *Authenticator {
	return &Authenticator{cfg: cfg, httpClient: cfg.httpClient()}
}

// Fetch exchanges client credentials for a token.
//
// A non-2xx answer maps to AuthenticationFailed carrying the gateway's
// error_description when present; a transport failure or timeout maps to
// GatewayUnreachable.
func (a *Authenticator) Fetch(ctx context.Context, clientID, clientSecret string) (*Token, error) {
	if clientID == "" || clientSecret == "" {
		return nil, apperror.NewConfigurationMissing("gateway credentials are not configured")
	}

	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     a.cfg.tokenURL(),
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if a.cfg.Scope != "" {
		cc.Scopes = strings.Fields(a.cfg.Scope)
	}

	tok, err := cc.Token(context.WithValue(ctx, oauth2.HTTPClient, a.httpClient))
	if err != nil {
		mapped := mapTokenError(err)
		logger.Warn(ctx, "gateway token grant failed", "client_id", clientID, "error", err)
		return nil, mapped
	}

	return &Token{AccessToken: tok.AccessToken, Expiry: tok.Expiry}, nil
}

// GetToken returns a fresh access token on every call.
func (a *Authenticator) GetToken(ctx context.Context, clientID, clientSecret string) (string, error) {
	tok, err := a.Fetch(ctx, clientID, clientSecret)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Invalidate is a no-op: nothing is cached.
func (a *Authenticator) Invalidate(clientID string) {}

func mapTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		msg := re.ErrorDescription
		if msg == "" && re.ErrorCode != "" {
			msg = "gateway authentication failed: " + re.ErrorCode
		}
		appErr := apperror.NewAuthenticationFailed(msg).WithCause(err)
		if re.Response != nil {
			appErr.WithDetail("gateway_status", re.Response.StatusCode)
		}
		return appErr
	}

	if isTransportError(err) {
		return apperror.NewGatewayUnreachable(err)
	}

	// 2xx without a usable token.
	return apperror.NewAuthenticationFailed(fmt.Sprintf("invalid token response: %v", err)).WithCause(err)
}

func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
