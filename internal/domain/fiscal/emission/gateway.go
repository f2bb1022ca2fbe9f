package emission

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"comanda/internal/core/apperror"
	"comanda/internal/domain/fiscal"
)

// TokenProvider hands out gateway bearer tokens.
type TokenProvider interface {
	GetToken(ctx context.Context, clientID, clientSecret string) (string, error)
	// Invalidate drops any cached token of clientID.
	Invalidate(clientID string)
}

// Gateway submits a mapped document.
// Non-2xx answers are GatewayRejected errors with a gateway_status detail.
type Gateway interface {
	Submit(ctx context.Context, accessToken string, document []byte) (*GatewayReply, error)
}

// Locker provides named locks with a TTL. acquired is false when the lock is held.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (unlock func(), acquired bool, err error)
}

// AuthorizedStatus is the gateway status of an authorized document.
const AuthorizedStatus = "autorizado"

// GatewayReply is a 2xx answer of the emission endpoint.
type GatewayReply struct {
	HTTPStatus int
	Status     string
	Key        string
	Reason     string
	Protocol   string
	XMLURL     string
	PDFURL     string
	// Body is the raw answer, returned to the caller untouched.
	Body json.RawMessage
}

// Outcome interprets the reply: "autorizado" is Authorized, anything else Rejected.
func (r *GatewayReply) Outcome() fiscal.Outcome {
	if strings.EqualFold(strings.TrimSpace(r.Status), AuthorizedStatus) {
		return fiscal.Authorized{
			Key:      r.Key,
			Protocol: r.Protocol,
			XMLURL:   r.XMLURL,
			PDFURL:   r.PDFURL,
			Message:  r.Reason,
		}
	}

	msg := strings.TrimSpace(r.Reason)
	if msg == "" {
		msg = fmt.Sprintf("gateway status %q", r.Status)
	}
	return fiscal.Rejected{Key: r.Key, Message: msg}
}

// isUnauthorized reports a 401 from the emission endpoint.
func isUnauthorized(err error) bool {
	appErr, ok := apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeGatewayRejected {
		return false
	}
	status, _ := appErr.Details["gateway_status"].(int)
	return status == http.StatusUnauthorized
}
