package money

import "strings"

// Currency pins the rounding scale used when finalising amounts.
type Currency struct {
	Code  string
	Scale int32
}

// VND has no minor unit in circulation.
var VND = Currency{Code: "VND", Scale: 0}

// CurrencyFor returns a known currency by ISO code, falling back to scale 2.
func CurrencyFor(code string, scale int32) Currency {
	code = strings.ToUpper(strings.TrimSpace(code))
	switch code {
	case "", "VND":
		return VND
	}
	if scale < 0 {
		scale = 2
	}
	return Currency{Code: code, Scale: scale}
}

// Round rounds m half-up to the currency's smallest unit.
func (c Currency) Round(m Money) Money { return m.Round(c.Scale) }
