package nfce

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// PaymentCode is the tPag enumeration of the NFC-e layout.
type PaymentCode string

const (
	PaymentCash    PaymentCode = "01"
	PaymentCredit  PaymentCode = "03"
	PaymentDebit   PaymentCode = "04"
	PaymentVoucher PaymentCode = "10"
	PaymentPix     PaymentCode = "17"
	PaymentOther   PaymentCode = "99"
)

// paymentRule maps label fragments to a code.
type paymentRule struct {
	code  PaymentCode
	terms []string
}

// paymentRules is evaluated top to bottom; the first rule with a matching term wins.
// Terms are compared against the folded label (lower case, no accents).
var paymentRules = []paymentRule{
	{PaymentCash, []string{"dinheiro", "especie", "cash"}},
	{PaymentCredit, []string{"credito", "credit"}},
	{PaymentDebit, []string{"debito", "debit"}},
	{PaymentPix, []string{"pix"}},
	{PaymentVoucher, []string{"vale", "voucher", "refeicao", "alimentacao", "ticket", "sodexo", "alelo", " vr ", " va "}},
}

// ClassifyPayment maps a free-text payment method to its tPag code.
// Unrecognized and empty labels map to PaymentOther.
func ClassifyPayment(method string) PaymentCode {
	folded := foldLabel(method)
	if folded == "" {
		return PaymentOther
	}
	// Pad so whole-word terms like " vr " match at either end of the label.
	folded = " " + folded + " "

	for _, rule := range paymentRules {
		for _, term := range rule.terms {
			if strings.Contains(folded, term) {
				return rule.code
			}
		}
	}
	return PaymentOther
}

// foldLabel lower-cases s and strips diacritics ("Cartão de Crédito" -> "cartao de credito").
func foldLabel(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}
