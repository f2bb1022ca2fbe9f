// Package numerator provides the PostgreSQL implementation of fiscal document numbering.
// This is the infrastructure layer - it implements core/numerator.Allocator.
package numerator

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"comanda/internal/core/apperror"
	corenumerator "comanda/internal/core/numerator"
	"comanda/pkg/logger"
)

// Querier interface for database operations.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Service allocates document numbers from the fiscal_sequences table.
//
// Every allocation is a single UPSERT + RETURNING statement, so the row lock taken
// by the update serializes concurrent callers across processes. Numbers are never
// cached in memory: a crash between reservation and use leaves a gap, never a
// duplicate, and a restart resumes from the stored value.
//
// The querier should be the pool, not a business transaction: a number must stay
// consumed even when the surrounding work rolls back.
type Service struct {
	querier Querier
}

// Ensure compile-time interface compliance.
var _ corenumerator.Allocator = (*Service)(nil)

// New creates a new numerator service.
func New(querier Querier) *Service {
	return &Service{querier: querier}
}

const allocateSQL = `
	INSERT INTO fiscal_sequences (company_id, environment, serie, last_number)
	VALUES ($1, $2, $3, 1)
	ON CONFLICT (company_id, environment, serie)
	DO UPDATE SET last_number = fiscal_sequences.last_number + 1, updated_at = now()
	RETURNING last_number`

const currentSQL = `
	SELECT last_number FROM fiscal_sequences
	WHERE company_id = $1 AND environment = $2 AND serie = $3`

const seedSQL = `
	INSERT INTO fiscal_sequences (company_id, environment, serie, last_number)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (company_id, environment, serie)
	DO UPDATE SET last_number = GREATEST(fiscal_sequences.last_number, EXCLUDED.last_number), updated_at = now()
	RETURNING last_number`

// Allocate reserves the next number of the stream; the first allocation returns 1.
func (s *Service) Allocate(ctx context.Context, key corenumerator.Key) (int64, error) {
	if s == nil || s.querier == nil {
		return 0, apperror.NewSequenceUnavailable(errors.New("numerator service is not initialized"))
	}
	if err := key.Validate(); err != nil {
		return 0, err
	}

	var num int64
	err := s.querier.QueryRow(ctx, allocateSQL, key.CompanyID, string(key.Environment), key.Serie).Scan(&num)
	if err != nil {
		return 0, apperror.NewSequenceUnavailable(fmt.Errorf("allocate %s: %w", key, err)).
			WithDetail("sequence", key.String())
	}

	logger.Debug(ctx, "fiscal number allocated", "sequence", key.String(), "number", num)
	return num, nil
}

// Current returns the last allocated number without consuming one (0 when none yet).
func (s *Service) Current(ctx context.Context, key corenumerator.Key) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}

	var num int64
	err := s.querier.QueryRow(ctx, currentSQL, key.CompanyID, string(key.Environment), key.Serie).Scan(&num)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, apperror.NewSequenceUnavailable(fmt.Errorf("current %s: %w", key, err)).
			WithDetail("sequence", key.String())
	}
	return num, nil
}

// Seed raises the stream so the next allocation returns value+1.
// Used when migrating a company that already issued documents elsewhere.
// A lower value leaves the stream untouched; the stored value is returned.
func (s *Service) Seed(ctx context.Context, key corenumerator.Key, value int64) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, apperror.NewValidation("seed value must not be negative").WithDetail("value", value)
	}

	var num int64
	err := s.querier.QueryRow(ctx, seedSQL, key.CompanyID, string(key.Environment), key.Serie, value).Scan(&num)
	if err != nil {
		return 0, apperror.NewSequenceUnavailable(fmt.Errorf("seed %s: %w", key, err)).
			WithDetail("sequence", key.String())
	}

	logger.Info(ctx, "fiscal sequence seeded", "sequence", key.String(), "requested", value, "stored", num)
	return num, nil
}
