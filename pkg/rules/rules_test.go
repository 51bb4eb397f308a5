package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRules(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "financial_rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeRules(t, `
currency: EUR
max_total_budget: 2000000
min_total_budget: 10000
categories:
  - name: Personnel
    max_share: 0.6
    required: true
    keywords: ["salary", "staff"]
  - name: equipment
    max_share: 0.3
  - name: travel
    max_share: 0.1
`)

	r, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "EUR", r.Currency)
	assert.Equal(t, 2000000.0, r.MaxTotalBudget)
	assert.Len(t, r.Categories, 3)
	assert.Equal(t, []string{"personnel"}, r.Required())

	c, ok := r.Category("PERSONNEL ")
	require.True(t, ok)
	assert.Equal(t, 0.6, c.MaxShare)
	assert.Equal(t, []string{"salary", "staff"}, c.Keywords)

	_, ok = r.Category("marketing")
	assert.False(t, ok)
}

func TestLoadDefaultsCurrency(t *testing.T) {
	r, err := Load(writeRules(t, "categories:\n  - name: personnel\n    max_share: 1\n"))
	require.NoError(t, err)
	assert.Equal(t, "USD", r.Currency)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"no categories", "currency: USD\n", ErrNoCategories.Error()},
		{"bad share", "categories:\n  - name: a\n    max_share: 1.5\n", "max_share must be in (0, 1]"},
		{"duplicate", "categories:\n  - name: a\n    max_share: 0.5\n  - name: A\n    max_share: 0.5\n", "duplicate category"},
		{"unnamed", "categories:\n  - max_share: 0.5\n", "has no name"},
		{"min above max", "max_total_budget: 10\nmin_total_budget: 20\ncategories:\n  - name: a\n    max_share: 1\n", "exceeds max_total_budget"},
		{"malformed", "categories: [", "failed to parse rules file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeRules(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
