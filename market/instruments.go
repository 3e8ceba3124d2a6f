// market/instruments.go
package market

import "strings"

type InstrumentMeta struct {
	Name          string
	BaseCurrency  string
	QuoteCurrency string
	PipLocation   int
}

// PipSize returns the price distance of one pip (0.0001 for EUR_USD, 0.01 for USD_JPY).
func (m InstrumentMeta) PipSize() float64 {
	p := 1.0
	for i := 0; i < -m.PipLocation; i++ {
		p /= 10
	}
	return p
}

var Instruments = map[string]InstrumentMeta{
	"EUR_USD": {Name: "EUR_USD", BaseCurrency: "EUR", QuoteCurrency: "USD", PipLocation: -4},
	"GBP_USD": {Name: "GBP_USD", BaseCurrency: "GBP", QuoteCurrency: "USD", PipLocation: -4},
	"AUD_USD": {Name: "AUD_USD", BaseCurrency: "AUD", QuoteCurrency: "USD", PipLocation: -4},
	"NZD_USD": {Name: "NZD_USD", BaseCurrency: "NZD", QuoteCurrency: "USD", PipLocation: -4},
	"USD_CHF": {Name: "USD_CHF", BaseCurrency: "USD", QuoteCurrency: "CHF", PipLocation: -4},
	"USD_CAD": {Name: "USD_CAD", BaseCurrency: "USD", QuoteCurrency: "CAD", PipLocation: -4},
	"EUR_GBP": {Name: "EUR_GBP", BaseCurrency: "EUR", QuoteCurrency: "GBP", PipLocation: -4},
	"USD_JPY": {Name: "USD_JPY", BaseCurrency: "USD", QuoteCurrency: "JPY", PipLocation: -2},
	"EUR_JPY": {Name: "EUR_JPY", BaseCurrency: "EUR", QuoteCurrency: "JPY", PipLocation: -2},
	"GBP_JPY": {Name: "GBP_JPY", BaseCurrency: "GBP", QuoteCurrency: "JPY", PipLocation: -2},
	"XAU_USD": {Name: "XAU_USD", BaseCurrency: "XAU", QuoteCurrency: "USD", PipLocation: -2},
}

// NormalizePair maps "EURUSD", "eur/usd" and "EUR_USD" to "EUR_USD".
// Symbols that are not six letters are returned upper-cased.
func NormalizePair(pair string) string {
	p := strings.ToUpper(strings.TrimSpace(pair))
	p = strings.NewReplacer("/", "", "_", "", "-", "").Replace(p)
	if len(p) != 6 {
		return p
	}
	return p[:3] + "_" + p[3:]
}

// LookupInstrument returns the metadata for pair in any of the accepted spellings.
// Unknown pairs get the common FX default of a 4th-decimal pip.
func LookupInstrument(pair string) (InstrumentMeta, bool) {
	name := NormalizePair(pair)
	if meta, ok := Instruments[name]; ok {
		return meta, true
	}
	return InstrumentMeta{Name: name, PipLocation: -4}, false
}

// SpreadPrice converts a spread in points (tenths of a pip) into price units.
// 2 points on EUR_USD is 0.2 pips, i.e. 0.00002.
func SpreadPrice(pair string, points float64) float64 {
	meta, _ := LookupInstrument(pair)
	return points / 10 * meta.PipSize()
}
