package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatSymbol(t *testing.T) {
	cases := map[string]string{
		"infy":        "INFY.NS",
		"  tcs.ns ":   "TCS.NS",
		"reliance.bo": "RELIANCE.BO",
		"^nsei":       "^NSEI",
		"":            "",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatSymbol(in), "input %q", in)
	}
}

func TestFormatSymbolsDeduplicates(t *testing.T) {
	got := FormatSymbols([]string{"infy", "INFY.NS", " ", "tcs"})
	assert.Equal(t, []string{"INFY.NS", "TCS.NS"}, got)
}

func TestBaseSymbol(t *testing.T) {
	assert.Equal(t, "INFY", BaseSymbol("infy.ns"))
	assert.Equal(t, "^NSEI", BaseSymbol("^NSEI"))
}

func TestParseIntDefault(t *testing.T) {
	assert.Equal(t, 7, ParseIntDefault("7", 1))
	assert.Equal(t, 1, ParseIntDefault("x", 1))
	assert.Equal(t, 1, ParseIntDefault("", 1))
}
