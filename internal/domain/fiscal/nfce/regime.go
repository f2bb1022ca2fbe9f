package nfce

import (
	"sort"
	"strings"

	"comanda/internal/core/apperror"
)

// Regime is a tax regime profile: the codes emitted per item. Every profile
// shipped today emits zero tax totals.
type Regime struct {
	Name string
	// CRT is the issuer's "código de regime tributário".
	CRT int
	// CSOSN is emitted in the ICMSSN102 group of every item.
	CSOSN string
	// PISCOFINSCST is the CST of the zero-rated PIS/COFINS "outras" groups.
	PISCOFINSCST string
}

// DefaultRegime is used when the company configuration names none.
const DefaultRegime = "simples_nacional"

var regimes = map[string]Regime{
	"simples_nacional": {Name: "simples_nacional", CRT: 1, CSOSN: "102", PISCOFINSCST: "99"},
	"mei":              {Name: "mei", CRT: 4, CSOSN: "102", PISCOFINSCST: "99"},
}

// LookupRegime resolves a profile by name; empty means DefaultRegime.
func LookupRegime(name string) (Regime, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultRegime
	}
	r, ok := regimes[name]
	if !ok {
		return Regime{}, apperror.NewConfigurationMissing("unsupported tax regime").
			WithDetail("tax_regime", name).
			WithDetail("supported", RegimeNames())
	}
	return r, nil
}

// RegimeNames lists the known profiles in stable order.
func RegimeNames() []string {
	names := make([]string, 0, len(regimes))
	for n := range regimes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
