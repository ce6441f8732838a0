// Package textutil normalises shopper typed text: coupon codes, masked CEP and CPF numbers,
// free form metadata.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeStringMap trims keys and values. Blank keys are dropped, and a map left empty
// becomes nil.
func NormalizeStringMap(in map[string]string) map[string]string {
	var out map[string]string
	for k, v := range in {
		if k = strings.TrimSpace(k); k == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(in))
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

var stripMarks = runes.Remove(runes.In(unicode.Mn))

// FoldCode makes "verão10" and "VERAO10" the same code.
func FoldCode(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if folded, _, err := transform.String(transform.Chain(norm.NFD, stripMarks, norm.NFC), s); err == nil {
		s = folded
	}
	return strings.ToUpper(s)
}

// Digits drops mask characters: "01310-100" becomes "01310100".
func Digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
