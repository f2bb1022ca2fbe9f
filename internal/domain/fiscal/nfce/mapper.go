package nfce

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"comanda/internal/core/types"
	"comanda/internal/domain/fiscal"
)

// Fallbacks for tax attributes missing on a product.
const (
	DefaultNCM    = "00000000"
	DefaultUnit   = "UN"
	DefaultCFOP   = "5102"
	DefaultOrigin = "0"
)

const (
	layoutVersion = "4.00"
	modelNFCe     = 65
	natOpConsumer = "VENDA AO CONSUMIDOR"
	processVer    = "comanda 1.0"
	noGTIN        = "SEM GTIN"
	countryCode   = "1058"
	countryName   = "BRASIL"

	// Homologation documents must carry this description on the first item.
	homologationItemName = "NOTA FISCAL EMITIDA EM AMBIENTE DE HOMOLOGACAO - SEM VALOR FISCAL"
)

// BuildDocument maps a sale onto an NFC-e document numbered number.
//
// It is pure: the issue timestamp comes from the sale, not the clock, so the same
// inputs always produce the same document. Callers validate the issuer and the
// tax regime first (ValidateIssuer, LookupRegime).
func BuildDocument(sale *fiscal.Sale, settings *fiscal.CompanySettings, cfg *fiscal.FiscalConfig, number int64) *Document {
	regime, err := LookupRegime(cfg.TaxRegime)
	if err != nil {
		regime = regimes[DefaultRegime]
	}
	key := cfg.SequenceKey()
	total := types.FormatMoney(sale.Total)
	zero := types.FormatMoney(types.Zero())

	doc := &Document{
		Ambiente:   string(key.Environment),
		Referencia: fmt.Sprintf("sale-%d-%d-%d", sale.ID, key.Serie, number),
		InfNFe: InfNFe{
			Versao: layoutVersion,
			Ide:    buildIde(sale, settings, key.Environment, key.Serie, number),
			Emit:   buildEmitente(settings, regime),
			Det:    make([]Det, 0, len(sale.Items)),
			Total: Total{ICMSTot: ICMSTot{
				VBC: zero, VICMS: zero, VICMSDeson: zero, VFCP: zero,
				VBCST: zero, VST: zero, VFCPST: zero, VFCPSTRet: zero,
				VProd:  total,
				VFrete: zero, VSeg: zero, VDesc: zero, VII: zero, VIPI: zero,
				VIPIDevol: zero, VPIS: zero, VCOFINS: zero, VOutro: zero,
				VNF: total,
			}},
			Transp: Transp{ModFrete: 9},
			Pag:    Pag{DetPag: []DetPag{buildPayment(sale.PaymentMethod, total)}},
		},
	}

	for i, item := range sale.Items {
		doc.InfNFe.Det = append(doc.InfNFe.Det, buildDet(i+1, item, regime, key.Environment))
	}

	return doc
}

func buildIde(sale *fiscal.Sale, settings *fiscal.CompanySettings, env fiscal.Environment, serie int, number int64) Ide {
	return Ide{
		CUF:      stateCode(settings.State),
		NatOp:    natOpConsumer,
		Mod:      modelNFCe,
		Serie:    strconv.Itoa(serie),
		NNF:      strconv.FormatInt(number, 10),
		DhEmi:    sale.ClosedAt.Format(time.RFC3339),
		TpNF:     1,
		IdDest:   1,
		CMunFG:   OnlyDigits(settings.CityCode),
		TpImp:    4,
		TpEmis:   1,
		TpAmb:    environmentCode(env),
		FinNFe:   1,
		IndFinal: 1,
		IndPres:  1,
		ProcEmi:  0,
		VerProc:  processVer,
	}
}

func buildEmitente(s *fiscal.CompanySettings, regime Regime) Emitente {
	nro := strings.TrimSpace(s.AddressNumber)
	if nro == "" {
		nro = "S/N"
	}
	return Emitente{
		CNPJ:  OnlyDigits(s.CNPJ),
		XNome: strings.TrimSpace(s.CompanyName),
		XFant: strings.TrimSpace(s.TradeName),
		EnderEmit: Endereco{
			XLgr:    strings.TrimSpace(s.Address),
			Nro:     nro,
			XBairro: strings.TrimSpace(s.District),
			CMun:    OnlyDigits(s.CityCode),
			XMun:    strings.TrimSpace(s.City),
			UF:      strings.ToUpper(strings.TrimSpace(s.State)),
			CEP:     OnlyDigits(s.CEP),
			CPais:   countryCode,
			XPais:   countryName,
		},
		IE:  OnlyDigits(s.StateRegistration),
		CRT: regime.CRT,
	}
}

func buildDet(n int, item fiscal.LineItem, regime Regime, env fiscal.Environment) Det {
	name := strings.TrimSpace(item.ProductName)
	if n == 1 && env == fiscal.Homologacao {
		name = homologationItemName
	}
	unit := orDefault(strings.ToUpper(strings.TrimSpace(item.Unit)), DefaultUnit)
	qty := types.FormatQuantity(item.Quantity)
	unitPrice := types.FormatMoney(item.UnitPrice)
	code := strconv.FormatInt(item.ProductID, 10)
	if item.ProductID == 0 {
		code = strconv.Itoa(n)
	}
	zero := types.FormatMoney(types.Zero())
	pisCofins := TaxOutr{CST: regime.PISCOFINSCST, VBC: zero, PAliq: zero, Valor: zero}

	return Det{
		NItem: n,
		Prod: Prod{
			CProd:    code,
			CEAN:     noGTIN,
			XProd:    name,
			NCM:      orDefault(OnlyDigits(item.NCM), DefaultNCM),
			CFOP:     orDefault(OnlyDigits(item.CFOP), DefaultCFOP),
			UCom:     unit,
			QCom:     qty,
			VUnCom:   unitPrice,
			VProd:    types.FormatMoney(item.TotalPrice),
			CEANTrib: noGTIN,
			UTrib:    unit,
			QTrib:    qty,
			VUnTrib:  unitPrice,
			IndTot:   1,
		},
		Imposto: Imposto{
			ICMS: ICMS{ICMSSN102: &ICMSSN{
				Orig:  orDefault(strings.TrimSpace(item.Origin), DefaultOrigin),
				CSOSN: regime.CSOSN,
			}},
			PIS:    PIS{PISOutr: pisCofins},
			COFINS: COFINS{COFINSOutr: pisCofins},
		},
	}
}

func buildPayment(method, amount string) DetPag {
	code := ClassifyPayment(method)
	p := DetPag{IndPag: 0, TPag: string(code), VPag: amount}
	if code == PaymentOther {
		p.XPag = orDefault(strings.TrimSpace(method), "Outros")
	}
	return p
}

func environmentCode(env fiscal.Environment) int {
	if env == fiscal.Producao {
		return 1
	}
	return 2
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
