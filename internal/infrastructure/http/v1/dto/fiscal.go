// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"time"

	"comanda/internal/domain/fiscal"
	"comanda/internal/domain/fiscal/emission"
)

// EmitRequest is the body of POST /emit.
type EmitRequest struct {
	SaleID int64 `json:"saleId" binding:"required"`
}

// EmitResponse is the outcome of an emission on the versioned API.
type EmitResponse struct {
	SaleID      int64  `json:"saleId"`
	AttemptID   string `json:"attemptId"`
	Environment string `json:"environment"`
	Serie       int    `json:"serie"`
	Number      int64  `json:"number"`
	Status      string `json:"status"`
	FiscalKey   string `json:"fiscalKey,omitempty"`
	Protocol    string `json:"protocol,omitempty"`
	Message     string `json:"message,omitempty"`
	Resubmitted bool   `json:"resubmitted,omitempty"`
	Gateway     any    `json:"gateway,omitempty"`
}

// FromEmitResult converts an emission result.
func FromEmitResult(r *emission.Result) EmitResponse {
	resp := EmitResponse{
		SaleID:      r.SaleID,
		AttemptID:   r.AttemptID.String(),
		Environment: string(r.Environment),
		Serie:       r.Serie,
		Number:      r.Number,
		Status:      string(r.Status),
		FiscalKey:   r.FiscalKey,
		Protocol:    r.Protocol,
		Message:     r.Message,
		Resubmitted: r.Resubmitted,
	}
	if len(r.GatewayBody) > 0 {
		resp.Gateway = r.GatewayBody
	}
	return resp
}

// AttemptResponse is one journaled document number.
type AttemptResponse struct {
	ID          string    `json:"id"`
	Environment string    `json:"environment"`
	Serie       int       `json:"serie"`
	Number      int64     `json:"number"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// SaleFiscalResponse is the fiscal state of a sale.
type SaleFiscalResponse struct {
	SaleID         int64             `json:"saleId"`
	CompanyID      int64             `json:"companyId"`
	Total          string            `json:"total"`
	FiscalStatus   string            `json:"fiscalStatus"`
	FiscalKey      string            `json:"fiscalKey,omitempty"`
	ProtocolNumber string            `json:"protocolNumber,omitempty"`
	XMLURL         string            `json:"xmlUrl,omitempty"`
	PDFURL         string            `json:"pdfUrl,omitempty"`
	FiscalMessage  string            `json:"fiscalMessage,omitempty"`
	Attempts       []AttemptResponse `json:"attempts"`
}

// FromSale converts a sale and its journal.
func FromSale(s *fiscal.Sale, attempts []*fiscal.Attempt) SaleFiscalResponse {
	resp := SaleFiscalResponse{
		SaleID:         s.ID,
		CompanyID:      s.CompanyID,
		Total:          s.Total.StringFixed(2),
		FiscalStatus:   string(s.FiscalStatus),
		FiscalKey:      s.FiscalKey,
		ProtocolNumber: s.ProtocolNumber,
		XMLURL:         s.XMLURL,
		PDFURL:         s.PDFURL,
		FiscalMessage:  s.FiscalMessage,
		Attempts:       make([]AttemptResponse, 0, len(attempts)),
	}
	for _, a := range attempts {
		resp.Attempts = append(resp.Attempts, AttemptResponse{
			ID:          a.ID.String(),
			Environment: string(a.Environment),
			Serie:       a.Serie,
			Number:      a.Number,
			Status:      string(a.Status),
			Message:     a.Message,
			CreatedAt:   a.CreatedAt,
			UpdatedAt:   a.UpdatedAt,
		})
	}
	return resp
}
