package signal

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rustyeddy/backtester/backtest"
)

type field int

const (
	fieldNone field = iota
	fieldKind
	fieldEntry
	fieldStop
	fieldTake
)

// keys accepted for each field, lower case with spaces for separators.
var fieldKeys = map[string]field{
	"arah":        fieldKind,
	"direction":   fieldKind,
	"signal":      fieldKind,
	"kind":        fieldKind,
	"type":        fieldKind,
	"order type":  fieldKind,
	"harga masuk": fieldEntry,
	"entry":       fieldEntry,
	"entry price": fieldEntry,
	"price":       fieldEntry,
	"stop loss":   fieldStop,
	"stoploss":    fieldStop,
	"sl":          fieldStop,
	"take profit": fieldTake,
	"takeprofit":  fieldTake,
	"tp":          fieldTake,
}

// ParseExtraction turns the compact extraction reply into a decision.
//
// Accepted shapes are "NO_TRADE", comma or newline separated key: value
// pairs ("Arah: BUY_LIMIT, Harga Masuk: 1.1, Stop Loss: 1.09, Take Profit:
// 1.12" or the English keys) and a JSON object with the same keys. ok is
// false when the text matches none of them; callers treat that as no trade.
func ParseExtraction(text string) (d backtest.Decision, ok bool) {
	d.Raw = text
	t := strings.TrimSpace(stripFences(text))

	if t == "" {
		return d, false
	}
	if isNoTrade(t) {
		return d, true
	}

	var vals map[field]string
	if strings.ContainsAny(t, "{") {
		vals = jsonFields(t)
	}
	if vals == nil {
		vals = pairFields(t)
	}

	kind, err := backtest.ParseDecisionKind(vals[fieldKind])
	if err != nil {
		return d, false
	}
	if kind == backtest.NoTrade {
		return d, vals[fieldKind] != ""
	}

	entry, e1 := parsePrice(vals[fieldEntry])
	stop, e2 := parsePrice(vals[fieldStop])
	take, e3 := parsePrice(vals[fieldTake])
	if e1 != nil || e2 != nil || e3 != nil {
		return d, false
	}

	d.Kind = kind
	d.Entry, d.StopLoss, d.TakeProfit = entry, stop, take
	return d, true
}

func isNoTrade(t string) bool {
	u := strings.ToUpper(strings.Trim(t, " .\"'`*"))
	return u == "NO_TRADE" || u == "NO TRADE" || u == "NOTRADE"
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}

func normaliseKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.Trim(k, "-*•# \t")
	k = strings.NewReplacer("_", " ", "-", " ").Replace(k)
	return strings.Join(strings.Fields(k), " ")
}

func lookupField(k string) field {
	return fieldKeys[normaliseKey(k)]
}

func pairFields(t string) map[field]string {
	out := map[field]string{}
	parts := strings.FieldsFunc(t, func(r rune) bool { return r == ',' || r == '\n' || r == ';' })
	for _, p := range parts {
		k, v, found := strings.Cut(p, ":")
		if !found {
			continue
		}
		if f := lookupField(k); f != fieldNone {
			if _, seen := out[f]; !seen {
				out[f] = strings.TrimSpace(v)
			}
		}
	}
	return out
}

func jsonFields(t string) map[field]string {
	raw, err := ExtractFirstJSONValue(t)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	out := map[field]string{}
	for k, v := range m {
		f := lookupField(k)
		if f == fieldNone || v == nil {
			continue
		}
		out[f] = fmt.Sprint(v)
	}
	return out
}

func parsePrice(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*`\"' ")
	s = strings.TrimRight(s, ".")
	if i := strings.IndexAny(s, " \t("); i > 0 {
		s = s[:i]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("price must be positive, got %v", v)
	}
	return v, nil
}
