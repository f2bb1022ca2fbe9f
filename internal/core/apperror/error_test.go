package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageFailures_AreBadRequest(t *testing.T) {
	errs := []*AppError{
		NewConfigurationMissing("missing cnpj"),
		NewAuthenticationFailed(""),
		NewSequenceUnavailable(errors.New("db down")),
		NewGatewayRejected(422, "Rejeição: CNPJ inválido"),
		NewGatewayUnreachable(errors.New("timeout")),
	}

	for _, e := range errs {
		assert.Equal(t, http.StatusBadRequest, e.HTTPStatus, e.Code)
	}
}

func TestNewAuthenticationFailed_DefaultMessage(t *testing.T) {
	assert.Equal(t, "gateway authentication failed", NewAuthenticationFailed("").Message)
	assert.Equal(t, "invalid_client", NewAuthenticationFailed("invalid_client").Message)
}

func TestNewGatewayRejected_FallbackMessage(t *testing.T) {
	err := NewGatewayRejected(502, "")
	assert.Contains(t, err.Message, "502")
	assert.Equal(t, 502, err.Details["gateway_status"])
}

func TestIs_FollowsWrapChain(t *testing.T) {
	cause := errors.New("connection refused")
	wrapped := fmt.Errorf("allocate: %w", NewSequenceUnavailable(cause))

	assert.True(t, Is(wrapped, CodeSequenceUnavailable))
	assert.False(t, Is(wrapped, CodeGatewayRejected))
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, http.StatusBadRequest, GetHTTPStatus(wrapped))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(cause))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NewNotFound("sale", int64(7))))
	assert.False(t, IsNotFound(NewConflict("busy")))
}
