package exchange

import "sort"

// supported is the set of currencies expenses may be submitted in.
var supported = []string{
	"AUD", "BRL", "CAD", "CHF", "CNY", "EUR", "GBP", "HKD", "INR",
	"JPY", "KRW", "MXN", "NOK", "NZD", "SEK", "SGD", "USD",
}

// Currencies returns the supported currency codes plus extra (a company's
// reporting currency), sorted and deduplicated.
func Currencies(extra ...string) []string {
	seen := make(map[string]bool, len(supported)+len(extra))
	out := make([]string, 0, len(supported)+len(extra))
	for _, code := range supported {
		if !seen[code] {
			seen[code] = true
			out = append(out, code)
		}
	}
	for _, code := range extra {
		if code != "" && !seen[code] {
			seen[code] = true
			out = append(out, code)
		}
	}
	sort.Strings(out)
	return out
}
