package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"comanda/internal/core/apperror"
	"comanda/internal/domain/fiscal/emission"
	"comanda/pkg/logger"
)

// maxResponseBytes caps how much of a gateway answer is read.
const maxResponseBytes = 1 << 20

// Client posts NFC-e documents to the gateway emission endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Ensure compile-time interface compliance.
var _ emission.Gateway = (*Client)(nil)

// NewClient creates an emission client. Outbound requests share one rate limiter.
func NewClient(cfg Config) *Client {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		cfg:        cfg,
		httpClient: cfg.httpClient(),
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// emissionResponse is the 2xx body of the emission endpoint.
type emissionResponse struct {
	Status    string `json:"status"`
	Chave     string `json:"chave"`
	Motivo    string `json:"motivo"`
	Protocolo string `json:"protocolo"`
	XMLURL    string `json:"xml_url"`
	PDFURL    string `json:"pdf_url"`
}

// errorResponse is the non-2xx body; gateways disagree on the field name.
type errorResponse struct {
	Mensagem string `json:"mensagem"`
	Error    string `json:"error"`
	Message  string `json:"message"`
}

func (e errorResponse) text() string {
	for _, s := range []string{e.Mensagem, e.Error, e.Message} {
		if strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// Submit posts one document with a bearer token.
//
// A non-2xx answer maps to GatewayRejected (detail gateway_status carries the
// HTTP status, so callers can recognize 401); a transport failure, timeout or
// cancelled wait on the rate limiter maps to GatewayUnreachable.
func (c *Client) Submit(ctx context.Context, accessToken string, document []byte) (*emission.GatewayReply, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperror.NewGatewayUnreachable(fmt.Errorf("rate limiter: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.emissionURL(), bytes.NewReader(document))
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("build emission request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperror.NewGatewayUnreachable(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperror.NewGatewayUnreachable(fmt.Errorf("read emission response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		_ = json.Unmarshal(body, &e)
		logger.Warn(ctx, "gateway rejected document", "status", resp.StatusCode, "message", e.text())
		return nil, apperror.NewGatewayRejected(resp.StatusCode, e.text())
	}

	var r emissionResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, apperror.NewGatewayRejected(resp.StatusCode, "gateway returned an unreadable response").
			WithCause(err)
	}

	return &emission.GatewayReply{
		HTTPStatus: resp.StatusCode,
		Status:     r.Status,
		Key:        r.Chave,
		Reason:     r.Motivo,
		Protocol:   r.Protocolo,
		XMLURL:     r.XMLURL,
		PDFURL:     r.PDFURL,
		Body:       json.RawMessage(body),
	}, nil
}
