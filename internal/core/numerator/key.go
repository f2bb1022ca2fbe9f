// Package numerator provides domain contracts for fiscal document numbering.
package numerator

import (
	"fmt"

	"comanda/internal/core/apperror"
)

// Environment is the gateway environment a number is issued in.
// Each environment owns an independent numbering stream.
type Environment string

const (
	// Homologacao is the sandbox environment; documents have no legal validity.
	Homologacao Environment = "homologacao"
	// Producao is the legally binding environment.
	Producao Environment = "producao"
)

// Valid reports whether e is a known environment.
func (e Environment) Valid() bool {
	return e == Homologacao || e == Producao
}

// Key identifies one numbering stream.
type Key struct {
	CompanyID   int64
	Environment Environment
	Serie       int
}

// Validate checks the allocation preconditions.
func (k Key) Validate() error {
	if k.CompanyID <= 0 {
		return apperror.NewValidation("company id must be positive").WithDetail("company_id", k.CompanyID)
	}
	if !k.Environment.Valid() {
		return apperror.NewValidation("unknown fiscal environment").WithDetail("environment", string(k.Environment))
	}
	if k.Serie < 1 {
		return apperror.NewValidation("serie must be at least 1").WithDetail("serie", k.Serie)
	}
	return nil
}

// String renders the key for logs and lock names.
func (k Key) String() string {
	return fmt.Sprintf("%d/%s/%d", k.CompanyID, k.Environment, k.Serie)
}
