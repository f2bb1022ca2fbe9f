package nfce

import (
	"strings"

	"comanda/internal/core/apperror"
	"comanda/internal/domain/fiscal"
)

// ValidateIssuer checks the company fields the document cannot be issued without.
// It runs before any number is reserved, so an incomplete configuration never
// burns a sequence number.
func ValidateIssuer(s *fiscal.CompanySettings) error {
	if s == nil {
		return apperror.NewConfigurationMissing("company settings not found")
	}

	var missing []string
	if OnlyDigits(s.CNPJ) == "" {
		missing = append(missing, "cnpj")
	}
	if OnlyDigits(s.StateRegistration) == "" {
		missing = append(missing, "state_registration")
	}
	if OnlyDigits(s.CEP) == "" {
		missing = append(missing, "cep")
	}
	if strings.TrimSpace(s.Address) == "" {
		missing = append(missing, "address")
	}
	if strings.TrimSpace(s.City) == "" {
		missing = append(missing, "city")
	}

	if len(missing) > 0 {
		return apperror.NewConfigurationMissing("incomplete company fiscal data: missing "+strings.Join(missing, ", ")).
			WithDetail("company_id", s.CompanyID).
			WithDetail("missing", missing)
	}
	return nil
}

// OnlyDigits drops every non-digit rune ("12.345.678/0001-90" -> "12345678000190").
func OnlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
