// Package memory provides an in-process implementation of the fiscal store, the
// sequence allocator and the transaction manager. It backs unit tests and local
// runs without PostgreSQL.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"comanda/internal/core/apperror"
	"comanda/internal/core/id"
	"comanda/internal/core/numerator"
	"comanda/internal/core/tx"
	"comanda/internal/domain/fiscal"
)

// Store holds sales, configuration, sequences and the emission journal in maps.
// All methods are safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	sales     map[int64]*fiscal.Sale
	configs   map[int64]*fiscal.FiscalConfig
	settings  map[int64]*fiscal.CompanySettings
	sequences map[numerator.Key]int64
	attempts  map[id.ID]*fiscal.Attempt
	faults    Faults

	// txMu serializes transactions; nested calls join the outer one.
	// Writes outside a transaction do not take it.
	txMu sync.Mutex
}

// Faults makes the next calls of an operation fail. Tests set them to drive
// the pipeline into its failure paths.
type Faults struct {
	Allocate        error
	UpdateSale      error
	CreateAttempt   error
	CompleteAttempt error
}

// Ensure compile-time interface compliance.
var (
	_ fiscal.Store        = (*Store)(nil)
	_ numerator.Allocator = (*Store)(nil)
	_ tx.Manager          = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		sales:     make(map[int64]*fiscal.Sale),
		configs:   make(map[int64]*fiscal.FiscalConfig),
		settings:  make(map[int64]*fiscal.CompanySettings),
		sequences: make(map[numerator.Key]int64),
		attempts:  make(map[id.ID]*fiscal.Attempt),
	}
}

// SetFaults replaces the injected failures.
func (s *Store) SetFaults(f Faults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = f
}

// PutSale stores a copy of sale.
func (s *Store) PutSale(sale *fiscal.Sale) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales[sale.ID] = cloneSale(sale)
}

// PutFiscalConfig stores a copy of cfg.
func (s *Store) PutFiscalConfig(cfg *fiscal.FiscalConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cfg
	s.configs[cfg.CompanyID] = &c
}

// PutCompanySettings stores a copy of settings.
func (s *Store) PutCompanySettings(settings *fiscal.CompanySettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *settings
	s.settings[settings.CompanyID] = &c
}

// GetSaleWithItems implements fiscal.SaleRepository.
func (s *Store) GetSaleWithItems(ctx context.Context, saleID int64) (*fiscal.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[saleID]
	if !ok {
		return nil, apperror.NewNotFound("sale", saleID)
	}
	return cloneSale(sale), nil
}

// UpdateSaleFiscalResult implements fiscal.SaleRepository.
func (s *Store) UpdateSaleFiscalResult(ctx context.Context, saleID int64, result fiscal.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.faults.UpdateSale != nil {
		return s.faults.UpdateSale
	}
	sale, ok := s.sales[saleID]
	if !ok {
		return apperror.NewNotFound("sale", saleID)
	}
	s.touchSale(ctx, saleID)
	result.Apply(sale)
	return nil
}

// GetFiscalConfig implements fiscal.ConfigRepository.
func (s *Store) GetFiscalConfig(ctx context.Context, companyID int64) (*fiscal.FiscalConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[companyID]
	if !ok {
		return nil, apperror.NewNotFound("fiscal config", companyID)
	}
	c := *cfg
	return &c, nil
}

// GetCompanySettings implements fiscal.ConfigRepository.
func (s *Store) GetCompanySettings(ctx context.Context, companyID int64) (*fiscal.CompanySettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, ok := s.settings[companyID]
	if !ok {
		return nil, apperror.NewNotFound("company settings", companyID)
	}
	c := *settings
	return &c, nil
}

// CreateAttempt implements fiscal.AttemptRepository.
func (s *Store) CreateAttempt(ctx context.Context, attempt *fiscal.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.faults.CreateAttempt != nil {
		return s.faults.CreateAttempt
	}
	if id.IsNil(attempt.ID) {
		attempt.ID = id.New()
	}
	for _, a := range s.attempts {
		if a.CompanyID == attempt.CompanyID && a.Environment == attempt.Environment &&
			a.Serie == attempt.Serie && a.Number == attempt.Number {
			return apperror.NewConflict("fiscal number already journaled").WithDetail("number", attempt.Number)
		}
	}

	s.touchAttempt(ctx, attempt.ID)
	now := time.Now().UTC()
	attempt.CreatedAt, attempt.UpdatedAt = now, now
	s.attempts[attempt.ID] = cloneAttempt(attempt)
	return nil
}

// CompleteAttempt implements fiscal.AttemptRepository.
func (s *Store) CompleteAttempt(ctx context.Context, attemptID id.ID, status fiscal.Status, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.faults.CompleteAttempt != nil {
		return s.faults.CompleteAttempt
	}
	a, ok := s.attempts[attemptID]
	if !ok {
		return apperror.NewNotFound("emission attempt", attemptID)
	}
	s.touchAttempt(ctx, attemptID)
	a.Status = status
	a.Message = message
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// ListAttempts implements fiscal.AttemptRepository.
func (s *Store) ListAttempts(ctx context.Context, saleID int64) ([]*fiscal.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*fiscal.Attempt
	for _, a := range s.attempts {
		if a.SaleID == saleID {
			out = append(out, cloneAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// Allocate implements numerator.Allocator.
func (s *Store) Allocate(ctx context.Context, key numerator.Key) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.faults.Allocate != nil {
		return 0, apperror.NewSequenceUnavailable(s.faults.Allocate)
	}
	s.sequences[key]++
	return s.sequences[key], nil
}

// Current implements numerator.Allocator.
func (s *Store) Current(ctx context.Context, key numerator.Key) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequences[key], nil
}

// Seed implements numerator.Allocator.
func (s *Store) Seed(ctx context.Context, key numerator.Key, value int64) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, apperror.NewValidation("seed value must not be negative").WithDetail("value", value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if value > s.sequences[key] {
		s.sequences[key] = value
	}
	return s.sequences[key], nil
}

type txKey struct{}

// txUndo holds the pre-transaction value of every row the transaction wrote.
// A nil value means the row did not exist.
type txUndo struct {
	sales    map[int64]*fiscal.Sale
	attempts map[id.ID]*fiscal.Attempt
}

func undoFrom(ctx context.Context) *txUndo {
	u, _ := ctx.Value(txKey{}).(*txUndo)
	return u
}

// RunInTransaction implements tx.Manager. Rows written inside fn are restored
// when fn fails; writes made outside the transaction are left alone. Sequences
// are not rolled back, like a database sequence row updated outside the
// business transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if undoFrom(ctx) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	undo := &txUndo{
		sales:    make(map[int64]*fiscal.Sale),
		attempts: make(map[id.ID]*fiscal.Attempt),
	}
	if err := fn(context.WithValue(ctx, txKey{}, undo)); err != nil {
		s.rollback(undo)
		return err
	}
	return nil
}

// touchSale remembers the current state of a sale before its first write in
// the transaction. Callers hold s.mu.
func (s *Store) touchSale(ctx context.Context, saleID int64) {
	u := undoFrom(ctx)
	if u == nil {
		return
	}
	if _, seen := u.sales[saleID]; seen {
		return
	}
	if sale, ok := s.sales[saleID]; ok {
		u.sales[saleID] = cloneSale(sale)
	} else {
		u.sales[saleID] = nil
	}
}

// touchAttempt is touchSale for journal rows. Callers hold s.mu.
func (s *Store) touchAttempt(ctx context.Context, attemptID id.ID) {
	u := undoFrom(ctx)
	if u == nil {
		return
	}
	if _, seen := u.attempts[attemptID]; seen {
		return
	}
	if a, ok := s.attempts[attemptID]; ok {
		u.attempts[attemptID] = cloneAttempt(a)
	} else {
		u.attempts[attemptID] = nil
	}
}

func (s *Store) rollback(u *txUndo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range u.sales {
		if v == nil {
			delete(s.sales, k)
			continue
		}
		s.sales[k] = v
	}
	for k, v := range u.attempts {
		if v == nil {
			delete(s.attempts, k)
			continue
		}
		s.attempts[k] = v
	}
}

func cloneSale(sale *fiscal.Sale) *fiscal.Sale {
	c := *sale
	c.Items = append([]fiscal.LineItem(nil), sale.Items...)
	return &c
}

func cloneAttempt(a *fiscal.Attempt) *fiscal.Attempt {
	c := *a
	c.Document = append([]byte(nil), a.Document...)
	return &c
}
