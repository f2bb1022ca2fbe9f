package nfce

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comanda/internal/core/types"
	"comanda/internal/domain/fiscal"
)

func testSale() *fiscal.Sale {
	return &fiscal.Sale{
		ID:            501,
		CompanyID:     7,
		Total:         types.MustMoney("59.80"),
		PaymentMethod: "PIX",
		ClosedAt:      time.Date(2026, 3, 14, 21, 30, 0, 0, time.FixedZone("BRT", -3*3600)),
		Items: []fiscal.LineItem{
			{
				ProductID:   33,
				ProductName: "Picanha na chapa",
				Quantity:    types.MustMoney("2"),
				UnitPrice:   types.MustMoney("29.90"),
				TotalPrice:  types.MustMoney("59.80"),
			},
		},
	}
}

func testConfig(env fiscal.Environment) *fiscal.FiscalConfig {
	return &fiscal.FiscalConfig{
		CompanyID:    7,
		Environment:  env,
		ClientID:     "client",
		ClientSecret: "secret",
		Serie:        1,
	}
}

func TestBuildDocument_SingleItemPix(t *testing.T) {
	doc := BuildDocument(testSale(), validSettings(), testConfig(fiscal.Homologacao), 42)

	assert.Equal(t, "homologacao", doc.Ambiente)
	assert.Equal(t, "sale-501-1-42", doc.Referencia)

	ide := doc.InfNFe.Ide
	assert.Equal(t, "42", ide.NNF)
	assert.Equal(t, "1", ide.Serie)
	assert.Equal(t, 65, ide.Mod)
	assert.Equal(t, 2, ide.TpAmb)
	assert.Equal(t, "41", ide.CUF)
	assert.Equal(t, "4106902", ide.CMunFG)
	assert.Equal(t, "2026-03-14T21:30:00-03:00", ide.DhEmi)

	emit := doc.InfNFe.Emit
	assert.Equal(t, "12345678000190", emit.CNPJ)
	assert.Equal(t, "9012345678", emit.IE)
	assert.Equal(t, "80010000", emit.EnderEmit.CEP)
	assert.Equal(t, "PR", emit.EnderEmit.UF)
	assert.Equal(t, 1, emit.CRT)

	require.Len(t, doc.InfNFe.Det, 1)
	det := doc.InfNFe.Det[0]
	assert.Equal(t, 1, det.NItem)
	assert.Equal(t, "33", det.Prod.CProd)
	assert.Equal(t, DefaultNCM, det.Prod.NCM)
	assert.Equal(t, DefaultCFOP, det.Prod.CFOP)
	assert.Equal(t, DefaultUnit, det.Prod.UCom)
	assert.Equal(t, "2.0000", det.Prod.QCom)
	assert.Equal(t, "29.90", det.Prod.VUnCom)
	assert.Equal(t, "59.80", det.Prod.VProd)
	require.NotNil(t, det.Imposto.ICMS.ICMSSN102)
	assert.Equal(t, DefaultOrigin, det.Imposto.ICMS.ICMSSN102.Orig)
	assert.Equal(t, "102", det.Imposto.ICMS.ICMSSN102.CSOSN)

	tot := doc.InfNFe.Total.ICMSTot
	assert.Equal(t, "59.80", tot.VNF)
	assert.Equal(t, "59.80", tot.VProd)
	assert.Equal(t, "0.00", tot.VICMS)

	require.Len(t, doc.InfNFe.Pag.DetPag, 1)
	assert.Equal(t, "17", doc.InfNFe.Pag.DetPag[0].TPag)
	assert.Equal(t, "59.80", doc.InfNFe.Pag.DetPag[0].VPag)
	assert.Empty(t, doc.InfNFe.Pag.DetPag[0].XPag)
}

func TestBuildDocument_HomologationItemName(t *testing.T) {
	sale := testSale()

	homolog := BuildDocument(sale, validSettings(), testConfig(fiscal.Homologacao), 1)
	assert.Equal(t, homologationItemName, homolog.InfNFe.Det[0].Prod.XProd)

	prod := BuildDocument(sale, validSettings(), testConfig(fiscal.Producao), 1)
	assert.Equal(t, "Picanha na chapa", prod.InfNFe.Det[0].Prod.XProd)
	assert.Equal(t, 1, prod.InfNFe.Ide.TpAmb)
}

func TestBuildDocument_Deterministic(t *testing.T) {
	sale := testSale()
	settings := validSettings()
	cfg := testConfig(fiscal.Producao)

	a, err := BuildDocument(sale, settings, cfg, 9).Marshal()
	require.NoError(t, err)
	b, err := BuildDocument(sale, settings, cfg, 9).Marshal()
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestBuildDocument_ItemOrderAndProductData(t *testing.T) {
	sale := testSale()
	sale.Items = append(sale.Items,
		fiscal.LineItem{
			ProductID:   34,
			ProductName: "Chopp",
			Quantity:    types.MustMoney("3"),
			UnitPrice:   types.MustMoney("12.00"),
			TotalPrice:  types.MustMoney("36.00"),
			NCM:         "2203.00.00",
			CFOP:        "5405",
			Origin:      "2",
			Unit:        "lt",
		},
		fiscal.LineItem{
			ProductName: "Couvert",
			Quantity:    types.MustMoney("1"),
			UnitPrice:   types.MustMoney("5"),
			TotalPrice:  types.MustMoney("5"),
		},
	)

	doc := BuildDocument(sale, validSettings(), testConfig(fiscal.Producao), 3)
	require.Len(t, doc.InfNFe.Det, 3)

	for i, det := range doc.InfNFe.Det {
		assert.Equal(t, i+1, det.NItem)
	}
	chopp := doc.InfNFe.Det[1]
	assert.Equal(t, "Chopp", chopp.Prod.XProd)
	assert.Equal(t, "22030000", chopp.Prod.NCM)
	assert.Equal(t, "5405", chopp.Prod.CFOP)
	assert.Equal(t, "LT", chopp.Prod.UCom)
	assert.Equal(t, "2", chopp.Imposto.ICMS.ICMSSN102.Orig)

	couvert := doc.InfNFe.Det[2]
	assert.Equal(t, "3", couvert.Prod.CProd)
	assert.Equal(t, "5.00", couvert.Prod.VUnCom)
}

func TestBuildDocument_UnknownPaymentKeepsLabel(t *testing.T) {
	sale := testSale()
	sale.PaymentMethod = "Boleto"

	doc := BuildDocument(sale, validSettings(), testConfig(fiscal.Producao), 1)
	pag := doc.InfNFe.Pag.DetPag[0]
	assert.Equal(t, "99", pag.TPag)
	assert.Equal(t, "Boleto", pag.XPag)
}

func TestBuildDocument_DefaultSerieAndAddressNumber(t *testing.T) {
	cfg := testConfig(fiscal.Producao)
	cfg.Serie = 0
	cfg.TaxRegime = "mei"
	settings := validSettings()
	settings.AddressNumber = ""

	doc := BuildDocument(testSale(), settings, cfg, 1)
	assert.Equal(t, "1", doc.InfNFe.Ide.Serie)
	assert.Equal(t, "S/N", doc.InfNFe.Emit.EnderEmit.Nro)
	assert.Equal(t, 4, doc.InfNFe.Emit.CRT)
}

func TestDocument_MarshalFieldNames(t *testing.T) {
	raw, err := BuildDocument(testSale(), validSettings(), testConfig(fiscal.Homologacao), 42).Marshal()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	inf, ok := decoded["infNFe"].(map[string]any)
	require.True(t, ok)
	ide := inf["ide"].(map[string]any)
	assert.Equal(t, "42", ide["nNF"])
	pag := inf["pag"].(map[string]any)
	detPag := pag["detPag"].([]any)
	assert.Equal(t, "17", detPag[0].(map[string]any)["tPag"])
}
