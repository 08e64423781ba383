// Package attribution turns free-text page titles, product titles and landing
// page URLs into a join key and a marketer.
//
// Titles on the analytics side and on the store side are written by hand, e.g.
//
//	Red Shoes – MKT5                (page title)
//	Red Shoes MKT5 Sale             (product title)
//	/products/red-shoes?ref=MKT5    (landing page)
//
// The human-readable prefix becomes the core title, the embedded campaign code
// becomes the symbol.
package attribution

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// separators end the human-readable part of a title.
var separators = []string{"–", "—", " - "}

// nonWord matches everything that is not a letter, digit, mark, underscore or space.
var nonWord = regexp.MustCompile(`[^\p{L}\p{N}\p{M}_\s]+`)

// MatchSymbol returns the first symbol contained in raw. symbols must already
// be sorted longest-first, which makes the first hit the longest one.
func MatchSymbol(raw string, symbols []string) string {
	for _, s := range symbols {
		if s != "" && strings.Contains(raw, s) {
			return s
		}
	}
	return ""
}

// Normalize extracts the core title and campaign symbol from a raw title.
//
// symbols must be sorted longest-first (mapping.Table.Symbols); Normalize does
// not sort them. Empty or punctuation-only input yields ("", "").
//
// The core title never contains a symbol, so Normalize(core) returns core.
// Lower-casing and punctuation removal can expose one ("Shoes HN.01" becomes
// "shoes hn01" with symbol "hn01"); the cleanup repeats until none is left.
func Normalize(raw string, symbols []string) (core, symbol string) {
	if raw == "" {
		return "", ""
	}

	text := norm.NFC.String(raw)
	symbol = MatchSymbol(text, symbols)

	core = clean(truncateAtSeparator(text), symbol, symbols)
	// Each pass removes at least one symbol occurrence.
	for s := MatchSymbol(core, symbols); s != ""; s = MatchSymbol(core, symbols) {
		core = clean(core, s, symbols)
	}
	return core, symbol
}

// clean cuts text at symbol, strips every known symbol, lower-cases, drops
// punctuation and collapses whitespace.
func clean(text, symbol string, symbols []string) string {
	// The symbol also separates the name from marketing metadata
	// ("Red Shoes MKT5 Sale"), unless it leads the title.
	if symbol != "" {
		if i := strings.Index(text, symbol); i >= 0 && hasWord(text[:i]) {
			text = text[:i]
		}
	}

	for _, s := range symbols {
		if s != "" {
			text = strings.ReplaceAll(text, s, "")
		}
	}

	text = strings.ToLower(text)
	text = nonWord.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

func truncateAtSeparator(s string) string {
	cut := len(s)
	for _, sep := range separators {
		if i := strings.Index(s, sep); i >= 0 && i < cut {
			cut = i
		}
	}
	return s[:cut]
}

func hasWord(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
