package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comanda/internal/core/apperror"
	"comanda/internal/core/numerator"
	"comanda/internal/core/types"
	"comanda/internal/domain/fiscal"
)

var key = numerator.Key{CompanyID: 7, Environment: numerator.Producao, Serie: 1}

func TestAllocate_ConcurrentUniqueAndGapFree(t *testing.T) {
	s := New()
	ctx := context.Background()

	const workers = 64
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]int)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.Allocate(ctx, key)
			assert.NoError(t, err)
			mu.Lock()
			seen[n]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers)
	for n := int64(1); n <= workers; n++ {
		assert.Equal(t, 1, seen[n], "number %d", n)
	}
}

func TestAllocate_MonotonicAcrossRestart(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Seed(ctx, key, 41)
	require.NoError(t, err)

	// A restarted process sees only persisted state: model it as a fresh
	// allocator view over the same sequence rows.
	var restarted numerator.Allocator = s
	n, err := restarted.Allocate(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	cur, err := restarted.Current(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cur)
}

func TestAllocate_Fault(t *testing.T) {
	s := New()
	s.SetFaults(Faults{Allocate: errors.New("db down")})

	_, err := s.Allocate(context.Background(), key)
	assert.True(t, apperror.Is(err, apperror.CodeSequenceUnavailable))

	cur, err := s.Current(context.Background(), key)
	require.NoError(t, err)
	assert.Zero(t, cur)
}

func TestSeed_NeverLowers(t *testing.T) {
	s := New()
	ctx := context.Background()

	v, err := s.Seed(ctx, key, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)

	v, err = s.Seed(ctx, key, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)
}

func TestRunInTransaction_RollsBackSalesAndJournal(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutSale(&fiscal.Sale{ID: 1, CompanyID: 7, Total: types.MustMoney("10"), FiscalStatus: fiscal.StatusNone})

	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, s.CreateAttempt(ctx, &fiscal.Attempt{SaleID: 1, CompanyID: 7, Environment: fiscal.Producao, Serie: 1, Number: 1}))
		require.NoError(t, s.UpdateSaleFiscalResult(ctx, 1, fiscal.Pending{}.Result()))
		return boom
	})
	require.ErrorIs(t, err, boom)

	sale, err := s.GetSaleWithItems(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, fiscal.StatusNone, sale.FiscalStatus)

	attempts, err := s.ListAttempts(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, attempts)
}

func TestRunInTransaction_RollbackKeepsWritesOutsideTransaction(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutSale(&fiscal.Sale{ID: 1, CompanyID: 7, Total: types.MustMoney("10"), FiscalStatus: fiscal.StatusNone})
	s.PutSale(&fiscal.Sale{ID: 2, CompanyID: 7, Total: types.MustMoney("20"), FiscalStatus: fiscal.StatusNone})

	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(txCtx context.Context) error {
		require.NoError(t, s.UpdateSaleFiscalResult(txCtx, 1, fiscal.Pending{}.Result()))
		// Another emission persists sale 2 without a transaction meanwhile.
		require.NoError(t, s.UpdateSaleFiscalResult(ctx, 2, fiscal.Authorized{Key: "K2"}.Result()))
		require.NoError(t, s.CreateAttempt(ctx, &fiscal.Attempt{SaleID: 2, CompanyID: 7, Environment: fiscal.Producao, Serie: 1, Number: 9}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	first, err := s.GetSaleWithItems(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, fiscal.StatusNone, first.FiscalStatus)

	second, err := s.GetSaleWithItems(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, fiscal.StatusAuthorized, second.FiscalStatus)
	assert.Equal(t, "K2", second.FiscalKey)

	attempts, err := s.ListAttempts(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, attempts, 1)
}

func TestRunInTransaction_RollbackRestoresUpdatedAttempt(t *testing.T) {
	s := New()
	ctx := context.Background()
	attempt := &fiscal.Attempt{SaleID: 1, CompanyID: 7, Environment: fiscal.Producao, Serie: 1, Number: 3, Status: fiscal.StatusPending}
	require.NoError(t, s.CreateAttempt(ctx, attempt))

	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, s.CompleteAttempt(ctx, attempt.ID, fiscal.StatusAuthorized, "ok"))
		require.NoError(t, s.CompleteAttempt(ctx, attempt.ID, fiscal.StatusError, "again"))
		return errors.New("boom")
	})
	require.Error(t, err)

	attempts, err := s.ListAttempts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, fiscal.StatusPending, attempts[0].Status)
}

func TestRunInTransaction_Nested(t *testing.T) {
	s := New()
	calls := 0
	err := s.RunInTransaction(context.Background(), func(ctx context.Context) error {
		return s.RunInTransaction(ctx, func(ctx context.Context) error {
			calls++
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestCreateAttempt_DuplicateNumber(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := &fiscal.Attempt{SaleID: 1, CompanyID: 7, Environment: fiscal.Producao, Serie: 1, Number: 5}
	require.NoError(t, s.CreateAttempt(ctx, a))

	err := s.CreateAttempt(ctx, &fiscal.Attempt{SaleID: 2, CompanyID: 7, Environment: fiscal.Producao, Serie: 1, Number: 5})
	assert.True(t, apperror.Is(err, apperror.CodeConflict))
}

func TestGetters_NotFound(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.GetSaleWithItems(ctx, 9)
	assert.True(t, apperror.IsNotFound(err))
	_, err = s.GetFiscalConfig(ctx, 9)
	assert.True(t, apperror.IsNotFound(err))
	_, err = s.GetCompanySettings(ctx, 9)
	assert.True(t, apperror.IsNotFound(err))
	err = s.UpdateSaleFiscalResult(ctx, 9, fiscal.Result{})
	assert.True(t, apperror.IsNotFound(err))
}
