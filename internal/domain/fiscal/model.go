// Package fiscal holds the consumer fiscal document (NFC-e) domain model:
// the sale as seen by the emission pipeline, per-company fiscal configuration,
// the emission journal and the status reconciler.
package fiscal

import (
	"time"

	"comanda/internal/core/id"
	"comanda/internal/core/numerator"
	"comanda/internal/core/types"
)

// Environment is re-exported so callers do not import the numerator package for it.
type Environment = numerator.Environment

const (
	Homologacao = numerator.Homologacao
	Producao    = numerator.Producao
)

// Status is the fiscal state of a sale.
// Lifecycle: none -> pendente -> {autorizado | rejeitado | erro}.
type Status string

const (
	StatusNone       Status = "none"
	StatusPending    Status = "pendente"
	StatusAuthorized Status = "autorizado"
	StatusRejected   Status = "rejeitado"
	StatusError      Status = "erro"
)

// Sale is a closed sale. The pipeline reads it and writes only the fiscal fields.
type Sale struct {
	ID            int64       `db:"id" json:"id"`
	CompanyID     int64       `db:"company_id" json:"company_id"`
	Total         types.Money `db:"total" json:"total"`
	PaymentMethod string      `db:"payment_method" json:"payment_method"`
	ClosedAt      time.Time   `db:"closed_at" json:"closed_at"`

	FiscalStatus   Status `db:"fiscal_status" json:"fiscal_status"`
	FiscalKey      string `db:"fiscal_key" json:"fiscal_key,omitempty"`
	ProtocolNumber string `db:"protocol_number" json:"protocol_number,omitempty"`
	XMLURL         string `db:"xml_url" json:"xml_url,omitempty"`
	PDFURL         string `db:"pdf_url" json:"pdf_url,omitempty"`
	FiscalMessage  string `db:"fiscal_message" json:"fiscal_message,omitempty"`

	Items []LineItem `db:"-" json:"items"`
}

// LineItem is one sold product with its tax classification.
type LineItem struct {
	ProductID   int64          `db:"product_id" json:"product_id"`
	ProductName string         `db:"product_name" json:"product_name"`
	Quantity    types.Quantity `db:"quantity" json:"quantity"`
	UnitPrice   types.Money    `db:"unit_price" json:"unit_price"`
	TotalPrice  types.Money    `db:"total_price" json:"total_price"`
	NCM         string         `db:"ncm" json:"ncm,omitempty"`
	CFOP        string         `db:"cfop" json:"cfop,omitempty"`
	Origin      string         `db:"origin" json:"origin,omitempty"`
	Unit        string         `db:"unit" json:"unit,omitempty"`
}

// FiscalConfig is the per-company gateway configuration.
type FiscalConfig struct {
	CompanyID           int64       `db:"company_id"`
	Environment         Environment `db:"environment"`
	ClientID            string      `db:"client_id"`
	ClientSecret        string      `db:"client_secret"`
	CSCID               string      `db:"csc_id"`
	CSCToken            string      `db:"csc_token"`
	CertificateRef      string      `db:"certificate_ref"`
	CertificatePassword string      `db:"certificate_password"`
	Serie               int         `db:"serie"`
	TaxRegime           string      `db:"tax_regime"`
}

// SequenceKey returns the numbering stream this configuration issues from.
func (c *FiscalConfig) SequenceKey() numerator.Key {
	serie := c.Serie
	if serie < 1 {
		serie = 1
	}
	return numerator.Key{CompanyID: c.CompanyID, Environment: c.Environment, Serie: serie}
}

// HasCredentials reports whether both gateway credentials are set.
func (c *FiscalConfig) HasCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// CompanySettings is the issuer identity printed on the document.
type CompanySettings struct {
	CompanyID         int64       `db:"company_id"`
	CNPJ              string      `db:"cnpj"`
	CompanyName       string      `db:"company_name"`
	TradeName         string      `db:"trade_name"`
	Address           string      `db:"address"`
	AddressNumber     string      `db:"address_number"`
	District          string      `db:"district"`
	City              string      `db:"city"`
	CityCode          string      `db:"city_code"`
	State             string      `db:"state"`
	CEP               string      `db:"cep"`
	StateRegistration string      `db:"state_registration"`
	ServiceFee        types.Money `db:"service_fee"`
}

// Result is the set of fiscal fields written onto a sale in one update.
type Result struct {
	Status         Status
	FiscalKey      string
	ProtocolNumber string
	XMLURL         string
	PDFURL         string
	Message        string
}

// Apply copies r onto s.
func (r Result) Apply(s *Sale) {
	s.FiscalStatus = r.Status
	s.FiscalKey = r.FiscalKey
	s.ProtocolNumber = r.ProtocolNumber
	s.XMLURL = r.XMLURL
	s.PDFURL = r.PDFURL
	s.FiscalMessage = r.Message
}

// Attempt is one reserved document number and what became of it.
// Orphaned numbers (reserved, never answered) stay visible as pendente rows.
type Attempt struct {
	ID          id.ID       `db:"id"`
	SaleID      int64       `db:"sale_id"`
	CompanyID   int64       `db:"company_id"`
	Environment Environment `db:"environment"`
	Serie       int         `db:"serie"`
	Number      int64       `db:"number"`
	Status      Status      `db:"status"`
	Message     string      `db:"message"`
	Document    []byte      `db:"-"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}
