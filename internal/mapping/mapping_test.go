package mapping

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSortsSymbolsLongestFirst(t *testing.T) {
	table, err := New(map[string]string{
		"MKT1":  "A",
		"MKT11": "B",
		"AB":    "C",
		"ZZ":    "D",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"MKT11", "MKT1", "AB", "ZZ"}, table.Symbols())
}

func TestSymbolsReturnsCopy(t *testing.T) {
	table, err := New(map[string]string{"MKT1": "A", "MKT11": "B"}, nil)
	require.NoError(t, err)

	s := table.Symbols()
	s[0] = "mutated"
	assert.Equal(t, "MKT11", table.Symbols()[0])
}

func TestNewRejectsBadInput(t *testing.T) {
	tests := []struct {
		name        string
		pageTitle   map[string]string
		landingPage map[string]string
	}{
		{"both empty", nil, nil},
		{"empty symbol", map[string]string{"  ": "A"}, nil},
		{"empty landing key", map[string]string{"MKT1": "A"}, map[string]string{"": "B"}},
		{"duplicate after trim", map[string]string{"MKT1": "A", " MKT1 ": "B"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.pageTitle, tt.landingPage)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
		})
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marketer_mapping.json")
	content := `{
  "page_title_mapping": {"MKT5": "Alice", "MKT55": "Bob"},
  "landing_page_mapping": {"/lp/summer": "Carol"}
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	table, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"MKT55", "MKT5"}, table.Symbols())
	assert.Equal(t, []string{"/lp/summer"}, table.LandingPageKeys())

	m, ok := table.MarketerForSymbol("MKT5")
	assert.True(t, ok)
	assert.Equal(t, "Alice", m)

	m, ok = table.MarketerForLandingPage("/lp/summer")
	assert.True(t, ok)
	assert.Equal(t, "Carol", m)

	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, table.Marketers())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.yaml")
	content := `
page_title_mapping:
  MKT1: A
  MKT11: B
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	table, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"MKT11", "MKT1"}, table.Symbols())
	assert.Empty(t, table.LandingPageKeys())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"page_title_mapping": [`), 0644))
	_, err = Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestParseUnknownFormat(t *testing.T) {
	_, err := Parse([]byte("x"), "toml")
	assert.True(t, errors.Is(err, ErrInvalid))
}
