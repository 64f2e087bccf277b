// Package normalize contains the locale-tolerant text normalization used
// by every importer: amount parsing for es-AR number formats, unit-count
// extraction from point-of-sale exports, and bank concept cleanup.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// unitHints are the labels some POS exports use instead of a numeric
// count when an item is sold by unit.
var unitHints = map[string]struct{}{
	"UNI":      {},
	"UNIDAD":   {},
	"UNIDADES": {},
	"UND":      {},
	"U":        {},
}

// ParseAmount parses a monetary amount written in any of the formats the
// source files use: "1.234,56", "1234.56", "1 234,56" or the
// parenthesis-as-negative convention "(123,45)". It never fails; input
// that cannot be parsed yields 0.
func ParseAmount(raw string) float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	if strings.Contains(s, ",") {
		// A comma marks the decimal separator, so dots are thousands.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, " ", "")
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		value, err = strconv.ParseFloat(strings.ReplaceAll(s, " ", ""), 64)
		if err != nil {
			return 0
		}
	}
	if negative {
		return -value
	}
	return value
}

// ParseUnits reads a units-like cell. A parseable non-zero number wins;
// a bare "sold by unit" label counts as one; anything else is zero.
func ParseUnits(raw string) float64 {
	if units := ParseAmount(raw); units != 0 {
		return units
	}
	label := strings.ToUpper(strings.TrimSpace(raw))
	if _, ok := unitHints[label]; ok {
		return 1
	}
	return 0
}

var (
	varFragmentRe = regexp.MustCompile(`(?i)/\s*-?\s*VAR\s*/`)
	varWordRe     = regexp.MustCompile(`(?i)\bVAR\b`)
	taxIDRunRe    = regexp.MustCompile(`\b\d{8,11}\b`)
	cuitRe        = regexp.MustCompile(`(?i)\bCUIT\s*\d+\b`)
	cuilRe        = regexp.MustCompile(`(?i)\bCUIL\s*\d+\b`)
	hyphenTaxIDRe = regexp.MustCompile(`\b\d{2}-\d{8}-\d\b`)
	multiSpaceRe  = regexp.MustCompile(`\s{2,}`)
)

// CleanConcept strips bank boilerplate (VAR markers, CUIT/CUIL numbers,
// tax-id digit runs) from a movement concept, collapses whitespace and
// trims separator noise. Output is capped at 80 characters.
func CleanConcept(text string) string {
	text = strings.TrimSpace(text)
	text = varFragmentRe.ReplaceAllString(text, " ")
	text = varWordRe.ReplaceAllString(text, "")
	// Hyphenated ids first, or the bare digit run would eat their middle.
	text = hyphenTaxIDRe.ReplaceAllString(text, "")
	text = cuitRe.ReplaceAllString(text, "")
	text = cuilRe.ReplaceAllString(text, "")
	text = taxIDRunRe.ReplaceAllString(text, "")
	text = multiSpaceRe.ReplaceAllString(text, " ")
	text = strings.Trim(text, " -/;")
	if runes := []rune(text); len(runes) > 80 {
		text = strings.TrimRight(string(runes[:77]), " ") + "..."
	}
	return text
}

var dateLayouts = []string{"02/01/2006", "2006-01-02"}

// ParseDate parses the date formats seen in statement files (dd/mm/yyyy
// and ISO). The zero time plus an error is returned for anything else.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", value)
}

// LooksLikeDate reports whether ParseDate would accept the value.
func LooksLikeDate(value string) bool {
	_, err := ParseDate(value)
	return err == nil
}
