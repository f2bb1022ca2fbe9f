package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comanda/internal/core/apperror"
	appctx "comanda/internal/core/context"
	"comanda/internal/core/id"
	"comanda/internal/core/types"
	"comanda/internal/domain/auth"
	"comanda/internal/domain/fiscal"
	"comanda/internal/domain/fiscal/emission"
	v1 "comanda/internal/infrastructure/http/v1"
	"comanda/internal/infrastructure/http/v1/handlers"
	"comanda/internal/infrastructure/http/v1/middleware"
	"comanda/internal/infrastructure/storage/memory"
	"comanda/pkg/logger"
)

const gatewayBody = `{"status":"autorizado","chave":"ABC123","protocolo":"P1"}`

type fakeEmitter struct {
	calls  []int64
	caller *appctx.CallerContext
	emit   func(saleID int64) (*emission.Result, error)
}

func (f *fakeEmitter) Emit(ctx context.Context, saleID int64) (*emission.Result, error) {
	f.calls = append(f.calls, saleID)
	f.caller = appctx.GetCaller(ctx)
	if f.emit != nil {
		return f.emit(saleID)
	}
	return &emission.Result{
		SaleID:      saleID,
		AttemptID:   id.New(),
		Environment: fiscal.Homologacao,
		Serie:       1,
		Number:      42,
		Status:      fiscal.StatusAuthorized,
		FiscalKey:   "ABC123",
		Protocol:    "P1",
		GatewayBody: json.RawMessage(gatewayBody),
	}, nil
}

func newRouter(t *testing.T, emitter *fakeEmitter, mutate func(*v1.RouterConfig)) (http.Handler, *memory.Store) {
	t.Helper()
	store := memory.New()
	store.PutSale(&fiscal.Sale{
		ID:           501,
		CompanyID:    7,
		Total:        types.MustMoney("59.8"),
		FiscalStatus: fiscal.StatusError,
		Items:        []fiscal.LineItem{{ProductName: "x"}},
	})

	cfg := v1.RouterConfig{
		Logger:  logger.NewNop(),
		Emitter: emitter,
		Sales:   store,
		HealthChecks: map[string]handlers.Check{
			"postgres": func(context.Context) error { return nil },
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return v1.NewRouter(cfg), store
}

func do(h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestEmit_ReturnsGatewayBody(t *testing.T) {
	emitter := &fakeEmitter{}
	h, _ := newRouter(t, emitter, nil)

	w := do(h, http.MethodPost, "/emit", `{"saleId":501}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, gatewayBody, w.Body.String())
	assert.Equal(t, []int64{501}, emitter.calls)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))
}

func TestEmit_StageFailureIsBadRequest(t *testing.T) {
	emitter := &fakeEmitter{emit: func(int64) (*emission.Result, error) {
		return nil, apperror.NewConfigurationMissing("fiscal configuration not found for company").
			WithDetail("company_id", 7)
	}}
	h, _ := newRouter(t, emitter, nil)

	w := do(h, http.MethodPost, "/emit", `{"saleId":501}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decode(t, w)
	assert.Equal(t, "CONFIGURATION_MISSING", body["code"])
	assert.Equal(t, "fiscal configuration not found for company", body["error"])
	assert.Equal(t, "fiscal configuration not found for company", body["message"])
	assert.Equal(t, float64(7), body["details"].(map[string]any)["company_id"])
}

func TestEmit_InvalidBody(t *testing.T) {
	emitter := &fakeEmitter{}
	h, _ := newRouter(t, emitter, nil)

	for _, body := range []string{`{`, `{}`, `{"saleId":"x"}`} {
		w := do(h, http.MethodPost, "/emit", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, apperror.CodeValidation, decode(t, w)["code"])
	}
	assert.Empty(t, emitter.calls)
}

func TestEmit_UnknownErrorIsHidden(t *testing.T) {
	emitter := &fakeEmitter{emit: func(int64) (*emission.Result, error) {
		return nil, errors.New("pq: connection refused at 10.0.0.3")
	}}
	h, _ := newRouter(t, emitter, nil)

	w := do(h, http.MethodPost, "/emit", `{"saleId":501}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, apperror.CodeInternal, body["code"])
	assert.NotContains(t, w.Body.String(), "10.0.0.3")
}

func TestEmitSale_Versioned(t *testing.T) {
	emitter := &fakeEmitter{}
	h, _ := newRouter(t, emitter, nil)

	w := do(h, http.MethodPost, "/api/v1/fiscal/sales/501/emit", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(42), body["number"])
	assert.Equal(t, "autorizado", body["status"])
	assert.Equal(t, "ABC123", body["fiscalKey"])
	assert.Equal(t, "ABC123", body["gateway"].(map[string]any)["chave"])

	w = do(h, http.MethodPost, "/api/v1/fiscal/sales/abc/emit", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, emitter.calls, 1)
}

func TestGetSale(t *testing.T) {
	h, store := newRouter(t, &fakeEmitter{}, nil)
	require.NoError(t, store.CreateAttempt(context.Background(), &fiscal.Attempt{
		SaleID: 501, CompanyID: 7, Environment: fiscal.Homologacao, Serie: 1, Number: 42,
		Status: fiscal.StatusError, Message: "fiscal gateway unreachable",
	}))

	w := do(h, http.MethodGet, "/api/v1/fiscal/sales/501", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "erro", body["fiscalStatus"])
	assert.Equal(t, "59.80", body["total"])
	attempts := body["attempts"].([]any)
	require.Len(t, attempts, 1)
	assert.Equal(t, float64(42), attempts[0].(map[string]any)["number"])

	w = do(h, http.MethodGet, "/api/v1/fiscal/sales/999", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuth_ScopesCallerToCompany(t *testing.T) {
	jwtSvc := auth.NewJWTService(auth.DefaultJWTConfig("secret"))
	emitter := &fakeEmitter{}
	h, _ := newRouter(t, emitter, func(cfg *v1.RouterConfig) {
		cfg.JWTValidator = jwtSvc
		cfg.RequireAuth = true
	})

	w := do(h, http.MethodPost, "/emit", `{"saleId":501}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(h, http.MethodPost, "/emit", `{"saleId":501}`, "Authorization", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, emitter.calls)

	own, _, err := jwtSvc.GenerateAccessToken("pdv-01", 7)
	require.NoError(t, err)
	w = do(h, http.MethodPost, "/emit", `{"saleId":501}`, "Authorization", "Bearer "+own)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, emitter.caller)
	assert.Equal(t, int64(7), emitter.caller.CompanyID)

	other, _, err := jwtSvc.GenerateAccessToken("pdv-99", 99)
	require.NoError(t, err)
	w = do(h, http.MethodGet, "/api/v1/fiscal/sales/501", "", "Authorization", "Bearer "+other)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(h, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOptionalAuth(t *testing.T) {
	emitter := &fakeEmitter{}
	h, _ := newRouter(t, emitter, func(cfg *v1.RouterConfig) {
		cfg.JWTValidator = auth.NewJWTService(auth.DefaultJWTConfig("secret"))
	})

	w := do(h, http.MethodPost, "/emit", `{"saleId":501}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, emitter.caller)

	w = do(h, http.MethodPost, "/emit", `{"saleId":501}`, "Authorization", "Bearer forged")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimit(t *testing.T) {
	h, _ := newRouter(t, &fakeEmitter{}, func(cfg *v1.RouterConfig) {
		cfg.RateLimiter = middleware.NewRateLimiter(0.001, 1)
	})

	w := do(h, http.MethodPost, "/emit", `{"saleId":501}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(h, http.MethodPost, "/emit", `{"saleId":501}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMIT", decode(t, w)["code"])
}

func TestHealth(t *testing.T) {
	h, _ := newRouter(t, &fakeEmitter{}, func(cfg *v1.RouterConfig) {
		cfg.HealthChecks["redis"] = func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			assert.True(t, ok)
			return errors.New("dial tcp: connection refused")
		}
	})

	w := do(h, http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, "error", body["status"])
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "healthy", checks["postgres"])
	assert.Contains(t, checks["redis"], "unhealthy")
}

func TestRecovery(t *testing.T) {
	emitter := &fakeEmitter{emit: func(int64) (*emission.Result, error) {
		panic("boom")
	}}
	h, _ := newRouter(t, emitter, nil)

	w := do(h, http.MethodPost, "/emit", `{"saleId":501}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperror.CodeInternal, decode(t, w)["code"])
}
