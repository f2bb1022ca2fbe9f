package fiscal_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comanda/internal/core/types"
	"comanda/internal/domain/fiscal"
	"comanda/internal/infrastructure/storage/memory"
)

func newReconciler(t *testing.T) (*fiscal.Reconciler, *memory.Store) {
	t.Helper()
	store := memory.New()
	store.PutSale(&fiscal.Sale{ID: 501, CompanyID: 7, Total: types.MustMoney("59.80"), FiscalStatus: fiscal.StatusNone})
	return fiscal.NewReconciler(store, store, store), store
}

func TestPersist_Authorized(t *testing.T) {
	r, store := newReconciler(t)
	ctx := context.Background()

	outcome := fiscal.Authorized{Key: "ABC123", Protocol: "P1", XMLURL: "https://x/xml", PDFURL: "https://x/pdf"}
	require.NoError(t, r.Persist(ctx, 501, outcome))

	sale, err := store.GetSaleWithItems(ctx, 501)
	require.NoError(t, err)
	assert.Equal(t, fiscal.StatusAuthorized, sale.FiscalStatus)
	assert.Equal(t, "ABC123", sale.FiscalKey)
	assert.Equal(t, "P1", sale.ProtocolNumber)
	assert.Equal(t, "https://x/xml", sale.XMLURL)
	assert.Equal(t, "https://x/pdf", sale.PDFURL)
	assert.True(t, sale.Total.Equal(types.MustMoney("59.80")))
}

func TestPersist_Idempotent(t *testing.T) {
	r, store := newReconciler(t)
	ctx := context.Background()
	outcome := fiscal.Rejected{Key: "K", Message: "Rejeicao: CNPJ invalido"}

	require.NoError(t, r.Persist(ctx, 501, outcome))
	first, err := store.GetSaleWithItems(ctx, 501)
	require.NoError(t, err)

	require.NoError(t, r.Persist(ctx, 501, outcome))
	second, err := store.GetSaleWithItems(ctx, 501)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, fiscal.StatusRejected, second.FiscalStatus)
	assert.Equal(t, "Rejeicao: CNPJ invalido", second.FiscalMessage)
}

func TestPersist_OverwritesStaleFields(t *testing.T) {
	r, store := newReconciler(t)
	ctx := context.Background()

	require.NoError(t, r.Persist(ctx, 501, fiscal.Rejected{Key: "OLD", Message: "old"}))
	require.NoError(t, r.Persist(ctx, 501, fiscal.Failed{Message: "gateway unreachable"}))

	sale, err := store.GetSaleWithItems(ctx, 501)
	require.NoError(t, err)
	assert.Equal(t, fiscal.StatusError, sale.FiscalStatus)
	assert.Empty(t, sale.FiscalKey)
	assert.Equal(t, "gateway unreachable", sale.FiscalMessage)
}

func TestReserveAndPersistAttempt(t *testing.T) {
	r, store := newReconciler(t)
	ctx := context.Background()

	attempt := &fiscal.Attempt{SaleID: 501, CompanyID: 7, Environment: fiscal.Homologacao, Serie: 1, Number: 42, Document: []byte(`{}`)}
	require.NoError(t, r.Reserve(ctx, attempt))

	sale, err := store.GetSaleWithItems(ctx, 501)
	require.NoError(t, err)
	assert.Equal(t, fiscal.StatusPending, sale.FiscalStatus)

	require.NoError(t, r.PersistAttempt(ctx, 501, attempt.ID, fiscal.Authorized{Key: "ABC123"}))

	attempts, err := store.ListAttempts(ctx, 501)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, fiscal.StatusAuthorized, attempts[0].Status)
	assert.Equal(t, int64(42), attempts[0].Number)
}

func TestPersistAttempt_AllOrNothing(t *testing.T) {
	r, store := newReconciler(t)
	ctx := context.Background()

	attempt := &fiscal.Attempt{SaleID: 501, CompanyID: 7, Environment: fiscal.Homologacao, Serie: 1, Number: 1}
	require.NoError(t, r.Reserve(ctx, attempt))

	store.SetFaults(memory.Faults{CompleteAttempt: errors.New("disk full")})
	err := r.PersistAttempt(ctx, 501, attempt.ID, fiscal.Authorized{Key: "ABC123"})
	require.Error(t, err)

	sale, err := store.GetSaleWithItems(ctx, 501)
	require.NoError(t, err)
	assert.Equal(t, fiscal.StatusPending, sale.FiscalStatus)
	assert.Empty(t, sale.FiscalKey)
}

func TestOutcomeResults(t *testing.T) {
	assert.Equal(t, fiscal.StatusPending, fiscal.Pending{}.Result().Status)
	assert.Equal(t, fiscal.StatusError, fiscal.Failed{Message: "x"}.Result().Status)

	var sale fiscal.Sale
	fiscal.Authorized{Key: "K", Protocol: "P"}.Result().Apply(&sale)
	assert.Equal(t, "K", sale.FiscalKey)
	assert.Equal(t, "P", sale.ProtocolNumber)
}
