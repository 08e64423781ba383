package attribution

import (
	"strings"

	"github.com/ignite/marketer-attribution/internal/mapping"
	"golang.org/x/text/unicode/norm"
)

// Resolver attributes titles and landing pages to marketers.
//
// A Resolver can only be built from a mapping.Table, whose symbol lists are
// sorted longest-first at load time, so "MKT11-product" never resolves via MKT1.
type Resolver struct {
	table            *mapping.Table
	symbols          []string
	landingKeys      []string // lower-cased, longest first
	landingMarketers []string
}

// NewResolver creates a resolver over the given mapping table.
func NewResolver(table *mapping.Table) *Resolver {
	r := &Resolver{
		table:   table,
		symbols: table.Symbols(),
	}
	for _, k := range table.LandingPageKeys() {
		m, _ := table.MarketerForLandingPage(k)
		r.landingKeys = append(r.landingKeys, strings.ToLower(k))
		r.landingMarketers = append(r.landingMarketers, m)
	}
	return r
}

// Symbols returns the sorted symbol list used for normalization.
func (r *Resolver) Symbols() []string {
	return append([]string(nil), r.symbols...)
}

// Normalize runs Normalize with the resolver's sorted symbol list.
func (r *Resolver) Normalize(raw string) (core, symbol string) {
	return Normalize(raw, r.symbols)
}

// ResolveTitle returns the marketer mapped to the longest symbol contained in
// identifier, or "" when no symbol matches.
func (r *Resolver) ResolveTitle(identifier string) string {
	symbol := MatchSymbol(norm.NFC.String(identifier), r.symbols)
	if symbol == "" {
		return ""
	}
	m, _ := r.table.MarketerForSymbol(symbol)
	return m
}

// ResolveLandingPage matches url case-insensitively against the landing-page
// keys (longest first) and falls back to ResolveTitle, since a URL slug may
// carry a campaign symbol itself.
func (r *Resolver) ResolveLandingPage(url string) string {
	if url == "" {
		return ""
	}
	lower := strings.ToLower(norm.NFC.String(url))
	for i, k := range r.landingKeys {
		if strings.Contains(lower, k) {
			return r.landingMarketers[i]
		}
	}
	return r.ResolveTitle(url)
}
