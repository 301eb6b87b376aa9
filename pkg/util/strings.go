package util

import (
	"strconv"
	"strings"
)

// DefaultExchangeSuffix is appended to bare tickers.
const DefaultExchangeSuffix = ".NS"

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// FormatSymbol normalizes a ticker: trimmed, upper-cased and suffixed with the
// NSE exchange code unless it already names an exchange (.NS, .BO) or is an
// index (^NSEI).
func FormatSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if strings.HasSuffix(s, ".NS") || strings.HasSuffix(s, ".BO") || strings.HasPrefix(s, "^") {
		return s
	}
	return s + DefaultExchangeSuffix
}

// BaseSymbol strips a known exchange suffix.
func BaseSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, suffix := range []string{".NS", ".BO"} {
		if strings.HasSuffix(s, suffix) {
			return strings.TrimSuffix(s, suffix)
		}
	}
	return s
}

// FormatSymbols normalizes and de-duplicates a list, keeping the first
// occurrence order. Blank entries are dropped.
func FormatSymbols(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		f := FormatSymbol(s)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
