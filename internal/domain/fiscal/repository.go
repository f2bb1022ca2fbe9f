package fiscal

import (
	"context"

	"comanda/internal/core/id"
)

// SaleRepository reads sales and writes their fiscal result.
type SaleRepository interface {
	// GetSaleWithItems loads a sale and its line items in position order.
	// Returns apperror NotFound when the sale does not exist.
	GetSaleWithItems(ctx context.Context, saleID int64) (*Sale, error)

	// UpdateSaleFiscalResult writes every fiscal field of the sale in one statement.
	UpdateSaleFiscalResult(ctx context.Context, saleID int64, result Result) error
}

// ConfigRepository reads per-company configuration.
// Both lookups return apperror NotFound when the company has no row.
type ConfigRepository interface {
	GetFiscalConfig(ctx context.Context, companyID int64) (*FiscalConfig, error)
	GetCompanySettings(ctx context.Context, companyID int64) (*CompanySettings, error)
}

// AttemptRepository is the emission journal.
type AttemptRepository interface {
	CreateAttempt(ctx context.Context, attempt *Attempt) error
	CompleteAttempt(ctx context.Context, attemptID id.ID, status Status, message string) error
	ListAttempts(ctx context.Context, saleID int64) ([]*Attempt, error)
}

// Store is everything the emission pipeline needs from persistence.
type Store interface {
	SaleRepository
	ConfigRepository
	AttemptRepository
}
