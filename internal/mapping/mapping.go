// Package mapping holds the static symbol -> marketer and landing-page -> marketer
// tables. A Table is loaded once at startup and never mutated afterwards.
package mapping

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned for a mapping document that cannot be used.
var ErrInvalid = errors.New("invalid marketer mapping")

// Table maps campaign symbols and landing-page substrings to marketer IDs.
//
// Symbols and landing-page keys are kept sorted longest-first so that a
// first-match scan always selects the longest candidate.
type Table struct {
	pageTitle   map[string]string
	landingPage map[string]string
	symbols     []string
	landingKeys []string
}

// document is the on-disk layout of marketer_mapping.json / .yaml.
type document struct {
	PageTitleMapping   map[string]string `json:"page_title_mapping" yaml:"page_title_mapping"`
	LandingPageMapping map[string]string `json:"landing_page_mapping" yaml:"landing_page_mapping"`
}

// Load reads a mapping file. The format is picked from the extension:
// .yaml/.yml are parsed as YAML, everything else as JSON.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping %s: %w", path, err)
	}

	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}

	t, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("parse mapping %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes a mapping document in the given format ("json" or "yaml").
func Parse(data []byte, format string) (*Table, error) {
	var doc document
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	case "json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalid, format)
	}
	return New(doc.PageTitleMapping, doc.LandingPageMapping)
}

// New builds a Table from the two raw mappings. Keys are NFC-normalized and
// trimmed; an empty key, or a document with no entries at all, is rejected.
func New(pageTitle, landingPage map[string]string) (*Table, error) {
	if len(pageTitle) == 0 && len(landingPage) == 0 {
		return nil, fmt.Errorf("%w: both page_title_mapping and landing_page_mapping are empty", ErrInvalid)
	}

	pt, err := cleanKeys("page_title_mapping", pageTitle)
	if err != nil {
		return nil, err
	}
	lp, err := cleanKeys("landing_page_mapping", landingPage)
	if err != nil {
		return nil, err
	}

	return &Table{
		pageTitle:   pt,
		landingPage: lp,
		symbols:     sortedKeys(pt),
		landingKeys: sortedKeys(lp),
	}, nil
}

func cleanKeys(section string, in map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(in))
	for k, v := range in {
		key := norm.NFC.String(strings.TrimSpace(k))
		if key == "" {
			return nil, fmt.Errorf("%w: %s has an empty key", ErrInvalid, section)
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("%w: %s has duplicate key %q", ErrInvalid, section, key)
		}
		out[key] = strings.TrimSpace(v)
	}
	return out, nil
}

// sortedKeys returns the map keys longest first. Equal lengths are ordered
// lexicographically so the scan order never depends on map iteration.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	SortLongestFirst(keys)
	return keys
}

// SortLongestFirst sorts keys in place by descending length, then ascending value.
func SortLongestFirst(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
}

// Symbols returns the page-title symbols, longest first.
func (t *Table) Symbols() []string {
	return append([]string(nil), t.symbols...)
}

// LandingPageKeys returns the landing-page substrings, longest first.
func (t *Table) LandingPageKeys() []string {
	return append([]string(nil), t.landingKeys...)
}

// MarketerForSymbol looks up the marketer mapped to an exact symbol.
func (t *Table) MarketerForSymbol(symbol string) (string, bool) {
	m, ok := t.pageTitle[symbol]
	return m, ok
}

// MarketerForLandingPage looks up the marketer mapped to an exact landing-page key.
func (t *Table) MarketerForLandingPage(key string) (string, bool) {
	m, ok := t.landingPage[key]
	return m, ok
}

// Marketers returns every distinct marketer ID referenced by either section, sorted.
func (t *Table) Marketers() []string {
	seen := make(map[string]struct{})
	for _, m := range t.pageTitle {
		seen[m] = struct{}{}
	}
	for _, m := range t.landingPage {
		seen[m] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		if m != "" {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}
