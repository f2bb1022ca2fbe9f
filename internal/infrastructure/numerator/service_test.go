package numerator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comanda/internal/core/apperror"
	corenumerator "comanda/internal/core/numerator"
)

// Mock objects
type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates fiscal_sequences: one row per (company, environment, serie).
type mockQuerier struct {
	mu   sync.Mutex
	rows map[string]int64
	err  error
}

func newMockQuerier() *mockQuerier {
	return &mockQuerier{rows: make(map[string]int64)}
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return &mockRow{err: m.err}
	}

	key := fmt.Sprintf("%v/%v/%v", args[0], args[1], args[2])
	cur, exists := m.rows[key]

	switch {
	case strings.Contains(sql, "GREATEST"):
		v := args[3].(int64)
		if v > cur {
			cur = v
		}
	case strings.HasPrefix(strings.TrimSpace(sql), "SELECT"):
		if !exists {
			return &mockRow{err: pgx.ErrNoRows}
		}
		return &mockRow{val: cur}
	default:
		cur++
	}

	m.rows[key] = cur
	return &mockRow{val: cur}
}

func testKey() corenumerator.Key {
	return corenumerator.Key{CompanyID: 7, Environment: corenumerator.Homologacao, Serie: 1}
}

func TestAllocate_Sequential(t *testing.T) {
	svc := New(newMockQuerier())
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		num, err := svc.Allocate(ctx, testKey())
		require.NoError(t, err)
		assert.Equal(t, want, num)
	}
}

func TestAllocate_MonotonicAcrossRestarts(t *testing.T) {
	db := newMockQuerier()
	ctx := context.Background()

	first, err := New(db).Allocate(ctx, testKey())
	require.NoError(t, err)

	// A fresh service over the same table continues the stream.
	second, err := New(db).Allocate(ctx, testKey())
	require.NoError(t, err)
	assert.Equal(t, first+1, second)
}

func TestAllocate_IndependentStreams(t *testing.T) {
	svc := New(newMockQuerier())
	ctx := context.Background()

	homolog := testKey()
	prod := testKey()
	prod.Environment = corenumerator.Producao
	serie2 := testKey()
	serie2.Serie = 2

	for i := 0; i < 3; i++ {
		_, err := svc.Allocate(ctx, homolog)
		require.NoError(t, err)
	}

	num, err := svc.Allocate(ctx, prod)
	require.NoError(t, err)
	assert.Equal(t, int64(1), num)

	num, err = svc.Allocate(ctx, serie2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), num)
}

func TestAllocate_ConcurrentCallersGetDistinctNumbers(t *testing.T) {
	svc := New(newMockQuerier())
	ctx := context.Background()

	const workers = 50
	results := make(chan int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := svc.Allocate(ctx, testKey())
			assert.NoError(t, err)
			results <- num
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool, workers)
	for n := range results {
		assert.False(t, seen[n], "duplicate number %d", n)
		seen[n] = true
	}
	assert.Len(t, seen, workers)
	for n := int64(1); n <= workers; n++ {
		assert.True(t, seen[n], "missing number %d", n)
	}
}

func TestAllocate_StoreFailure(t *testing.T) {
	q := newMockQuerier()
	q.err = errors.New("connection refused")
	svc := New(q)

	_, err := svc.Allocate(context.Background(), testKey())
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeSequenceUnavailable))
}

func TestAllocate_InvalidKey(t *testing.T) {
	svc := New(newMockQuerier())

	_, err := svc.Allocate(context.Background(), corenumerator.Key{CompanyID: 7, Environment: "staging", Serie: 1})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
}

func TestCurrent(t *testing.T) {
	svc := New(newMockQuerier())
	ctx := context.Background()

	cur, err := svc.Current(ctx, testKey())
	require.NoError(t, err)
	assert.Equal(t, int64(0), cur)

	_, err = svc.Allocate(ctx, testKey())
	require.NoError(t, err)

	cur, err = svc.Current(ctx, testKey())
	require.NoError(t, err)
	assert.Equal(t, int64(1), cur)
}

func TestSeed_NeverLowers(t *testing.T) {
	svc := New(newMockQuerier())
	ctx := context.Background()

	stored, err := svc.Seed(ctx, testKey(), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), stored)

	num, err := svc.Allocate(ctx, testKey())
	require.NoError(t, err)
	assert.Equal(t, int64(101), num)

	stored, err = svc.Seed(ctx, testKey(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(101), stored)

	_, err = svc.Seed(ctx, testKey(), -1)
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
}
