// Package nfce maps a closed sale onto the NFC-e (model 65) JSON document the
// fiscal gateway signs and transmits.
//
// Field names follow the official layout (infNFe/ide/emit/det/total/pag) so the
// payload can be checked against the tax authority manual line by line.
package nfce

import (
	"encoding/json"
)

// Document is the body posted to the gateway emission endpoint.
type Document struct {
	Ambiente   string `json:"ambiente"`
	Referencia string `json:"referencia"`
	InfNFe     InfNFe `json:"infNFe"`
}

// InfNFe is the document proper.
type InfNFe struct {
	Versao string   `json:"versao"`
	Ide    Ide      `json:"ide"`
	Emit   Emitente `json:"emit"`
	Det    []Det    `json:"det"`
	Total  Total    `json:"total"`
	Transp Transp   `json:"transp"`
	Pag    Pag      `json:"pag"`
}

// Ide identifies the document.
type Ide struct {
	CUF      string `json:"cUF,omitempty"`
	NatOp    string `json:"natOp"`
	Mod      int    `json:"mod"`
	Serie    string `json:"serie"`
	NNF      string `json:"nNF"`
	DhEmi    string `json:"dhEmi"`
	TpNF     int    `json:"tpNF"`
	IdDest   int    `json:"idDest"`
	CMunFG   string `json:"cMunFG,omitempty"`
	TpImp    int    `json:"tpImp"`
	TpEmis   int    `json:"tpEmis"`
	TpAmb    int    `json:"tpAmb"`
	FinNFe   int    `json:"finNFe"`
	IndFinal int    `json:"indFinal"`
	IndPres  int    `json:"indPres"`
	ProcEmi  int    `json:"procEmi"`
	VerProc  string `json:"verProc"`
}

// Emitente is the issuer block.
type Emitente struct {
	CNPJ      string   `json:"CNPJ"`
	XNome     string   `json:"xNome"`
	XFant     string   `json:"xFant,omitempty"`
	EnderEmit Endereco `json:"enderEmit"`
	IE        string   `json:"IE"`
	CRT       int      `json:"CRT"`
}

// Endereco is a postal address.
type Endereco struct {
	XLgr    string `json:"xLgr"`
	Nro     string `json:"nro"`
	XBairro string `json:"xBairro,omitempty"`
	CMun    string `json:"cMun,omitempty"`
	XMun    string `json:"xMun"`
	UF      string `json:"UF,omitempty"`
	CEP     string `json:"CEP"`
	CPais   string `json:"cPais"`
	XPais   string `json:"xPais"`
}

// Det is one detail (line item) entry, 1-indexed.
type Det struct {
	NItem   int     `json:"nItem"`
	Prod    Prod    `json:"prod"`
	Imposto Imposto `json:"imposto"`
}

// Prod describes the product sold.
type Prod struct {
	CProd    string `json:"cProd"`
	CEAN     string `json:"cEAN"`
	XProd    string `json:"xProd"`
	NCM      string `json:"NCM"`
	CFOP     string `json:"CFOP"`
	UCom     string `json:"uCom"`
	QCom     string `json:"qCom"`
	VUnCom   string `json:"vUnCom"`
	VProd    string `json:"vProd"`
	CEANTrib string `json:"cEANTrib"`
	UTrib    string `json:"uTrib"`
	QTrib    string `json:"qTrib"`
	VUnTrib  string `json:"vUnTrib"`
	IndTot   int    `json:"indTot"`
}

// Imposto is the per-item tax block.
type Imposto struct {
	ICMS   ICMS   `json:"ICMS"`
	PIS    PIS    `json:"PIS"`
	COFINS COFINS `json:"COFINS"`
}

// ICMS carries the Simples Nacional group (CSOSN).
type ICMS struct {
	ICMSSN102 *ICMSSN `json:"ICMSSN102,omitempty"`
}

// ICMSSN is an ICMS group without tax amounts.
type ICMSSN struct {
	Orig  string `json:"orig"`
	CSOSN string `json:"CSOSN"`
}

// PIS carries the "outras operações" group.
type PIS struct {
	PISOutr TaxOutr `json:"PISOutr"`
}

// COFINS carries the "outras operações" group.
type COFINS struct {
	COFINSOutr TaxOutr `json:"COFINSOutr"`
}

// TaxOutr is a zero-rated PIS/COFINS entry.
type TaxOutr struct {
	CST   string `json:"CST"`
	VBC   string `json:"vBC"`
	PAliq string `json:"pAliq"`
	Valor string `json:"valor"`
}

// Total is the totals block.
type Total struct {
	ICMSTot ICMSTot `json:"ICMSTot"`
}

// ICMSTot mirrors the sale total into vProd and vNF; every tax total is zero.
type ICMSTot struct {
	VBC        string `json:"vBC"`
	VICMS      string `json:"vICMS"`
	VICMSDeson string `json:"vICMSDeson"`
	VFCP       string `json:"vFCP"`
	VBCST      string `json:"vBCST"`
	VST        string `json:"vST"`
	VFCPST     string `json:"vFCPST"`
	VFCPSTRet  string `json:"vFCPSTRet"`
	VProd      string `json:"vProd"`
	VFrete     string `json:"vFrete"`
	VSeg       string `json:"vSeg"`
	VDesc      string `json:"vDesc"`
	VII        string `json:"vII"`
	VIPI       string `json:"vIPI"`
	VIPIDevol  string `json:"vIPIDevol"`
	VPIS       string `json:"vPIS"`
	VCOFINS    string `json:"vCOFINS"`
	VOutro     string `json:"vOutro"`
	VNF        string `json:"vNF"`
}

// Transp is the transport block; consumer sales carry no freight.
type Transp struct {
	ModFrete int `json:"modFrete"`
}

// Pag is the payment block.
type Pag struct {
	DetPag []DetPag `json:"detPag"`
}

// DetPag is one payment entry.
type DetPag struct {
	IndPag int    `json:"indPag"`
	TPag   string `json:"tPag"`
	XPag   string `json:"xPag,omitempty"`
	VPag   string `json:"vPag"`
}

// Marshal encodes the document. Struct field order is fixed, so equal documents
// encode to identical bytes.
func (d *Document) Marshal() ([]byte, error) {
	return json.Marshal(d)
}
