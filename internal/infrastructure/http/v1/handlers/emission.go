package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"comanda/internal/core/apperror"
	appctx "comanda/internal/core/context"
	"comanda/internal/domain/fiscal"
	"comanda/internal/domain/fiscal/emission"
	"comanda/internal/infrastructure/http/v1/dto"
)

// Emitter runs the emission pipeline.
type Emitter interface {
	Emit(ctx context.Context, saleID int64) (*emission.Result, error)
}

// SaleReader reads the fiscal state of a sale.
type SaleReader interface {
	GetSaleWithItems(ctx context.Context, saleID int64) (*fiscal.Sale, error)
	ListAttempts(ctx context.Context, saleID int64) ([]*fiscal.Attempt, error)
}

// EmissionHandler exposes the emission pipeline over HTTP.
type EmissionHandler struct {
	*BaseHandler
	emitter Emitter
	sales   SaleReader
}

// NewEmissionHandler creates the handler.
func NewEmissionHandler(base *BaseHandler, emitter Emitter, sales SaleReader) *EmissionHandler {
	return &EmissionHandler{BaseHandler: base, emitter: emitter, sales: sales}
}

// Emit handles POST /emit {"saleId": n} and answers with the gateway body verbatim.
func (h *EmissionHandler) Emit(c *gin.Context) {
	var req dto.EmitRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.emitter.Emit(c.Request.Context(), req.SaleID)
	if err != nil {
		h.Error(c, err)
		return
	}

	if len(res.GatewayBody) == 0 {
		h.OK(c, dto.FromEmitResult(res))
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", res.GatewayBody)
}

// EmitSale handles POST /api/v1/fiscal/sales/:id/emit.
func (h *EmissionHandler) EmitSale(c *gin.Context) {
	saleID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	res, err := h.emitter.Emit(c.Request.Context(), saleID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromEmitResult(res))
}

// GetSale handles GET /api/v1/fiscal/sales/:id.
func (h *EmissionHandler) GetSale(c *gin.Context) {
	saleID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	sale, err := h.sales.GetSaleWithItems(ctx, saleID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if companyID := appctx.GetCompanyID(ctx); companyID != 0 && companyID != sale.CompanyID {
		h.Error(c, apperror.NewNotFound("sale", saleID))
		return
	}

	attempts, err := h.sales.ListAttempts(ctx, saleID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromSale(sale, attempts))
}
