package fiscal

import (
	"context"
	"fmt"

	"comanda/internal/core/id"
	"comanda/internal/core/tx"
)

// Outcome is what the gateway (or the pipeline) decided about a document.
type Outcome interface {
	Result() Result
}

// Authorized is a document accepted by the tax authority.
type Authorized struct {
	Key      string
	Protocol string
	XMLURL   string
	PDFURL   string
	Message  string
}

// Result implements Outcome.
func (a Authorized) Result() Result {
	return Result{
		Status:         StatusAuthorized,
		FiscalKey:      a.Key,
		ProtocolNumber: a.Protocol,
		XMLURL:         a.XMLURL,
		PDFURL:         a.PDFURL,
		Message:        a.Message,
	}
}

// Rejected is a document the gateway answered for but did not authorize.
type Rejected struct {
	Key     string
	Message string
}

// Result implements Outcome.
func (r Rejected) Result() Result {
	return Result{Status: StatusRejected, FiscalKey: r.Key, Message: r.Message}
}

// Failed is a pipeline failure after a number was reserved.
type Failed struct {
	Message string
}

// Result implements Outcome.
func (f Failed) Result() Result {
	return Result{Status: StatusError, Message: f.Message}
}

// Pending marks a sale whose number is reserved and whose document is in flight.
type Pending struct{}

// Result implements Outcome.
func (Pending) Result() Result {
	return Result{Status: StatusPending}
}

// Reconciler writes outcomes back onto sales.
type Reconciler struct {
	sales    SaleRepository
	attempts AttemptRepository
	txm      tx.Manager
}

// NewReconciler creates a reconciler.
func NewReconciler(sales SaleRepository, attempts AttemptRepository, txm tx.Manager) *Reconciler {
	return &Reconciler{sales: sales, attempts: attempts, txm: txm}
}

// Persist writes outcome onto the sale in a single update.
// Every fiscal field is overwritten, so applying the same outcome twice is a no-op.
func (r *Reconciler) Persist(ctx context.Context, saleID int64, outcome Outcome) error {
	if err := r.sales.UpdateSaleFiscalResult(ctx, saleID, outcome.Result()); err != nil {
		return fmt.Errorf("update sale %d fiscal result: %w", saleID, err)
	}
	return nil
}

// PersistAttempt writes outcome onto the sale and closes the journal row atomically.
func (r *Reconciler) PersistAttempt(ctx context.Context, saleID int64, attemptID id.ID, outcome Outcome) error {
	result := outcome.Result()
	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.sales.UpdateSaleFiscalResult(ctx, saleID, result); err != nil {
			return fmt.Errorf("update sale %d fiscal result: %w", saleID, err)
		}
		if err := r.attempts.CompleteAttempt(ctx, attemptID, result.Status, result.Message); err != nil {
			return fmt.Errorf("complete attempt %s: %w", attemptID, err)
		}
		return nil
	})
}

// Reserve journals a freshly allocated number and marks the sale pendente.
func (r *Reconciler) Reserve(ctx context.Context, attempt *Attempt) error {
	attempt.Status = StatusPending
	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.attempts.CreateAttempt(ctx, attempt); err != nil {
			return fmt.Errorf("create attempt: %w", err)
		}
		if err := r.sales.UpdateSaleFiscalResult(ctx, attempt.SaleID, Pending{}.Result()); err != nil {
			return fmt.Errorf("mark sale %d pending: %w", attempt.SaleID, err)
		}
		return nil
	})
}
