// Package rules loads the financial rule set that budget analysis runs against.
package rules

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrNoCategories = errors.New("rule set defines no budget categories")

// Category caps the share of the total budget a single line category may take.
type Category struct {
	Name        string   `yaml:"name"`
	MaxShare    float64  `yaml:"max_share"`
	Required    bool     `yaml:"required"`
	Keywords    []string `yaml:"keywords"`
	Description string   `yaml:"description"`
}

type FinancialRules struct {
	Currency       string     `yaml:"currency"`
	MaxTotalBudget float64    `yaml:"max_total_budget"`
	MinTotalBudget float64    `yaml:"min_total_budget"`
	Categories     []Category `yaml:"categories"`

	byName map[string]*Category
}

// Load reads and validates a YAML rule set.
func Load(path string) (*FinancialRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var r FinancialRules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}

	if err := r.validate(); err != nil {
		return nil, fmt.Errorf("invalid rules file %s: %w", path, err)
	}

	return &r, nil
}

func (r *FinancialRules) validate() error {
	if len(r.Categories) == 0 {
		return ErrNoCategories
	}
	if r.Currency == "" {
		r.Currency = "USD"
	}
	if r.MaxTotalBudget < 0 || r.MinTotalBudget < 0 {
		return errors.New("budget limits must not be negative")
	}
	if r.MaxTotalBudget > 0 && r.MinTotalBudget > r.MaxTotalBudget {
		return fmt.Errorf("min_total_budget %.2f exceeds max_total_budget %.2f", r.MinTotalBudget, r.MaxTotalBudget)
	}

	r.byName = make(map[string]*Category, len(r.Categories))
	for i := range r.Categories {
		c := &r.Categories[i]
		c.Name = strings.ToLower(strings.TrimSpace(c.Name))
		if c.Name == "" {
			return fmt.Errorf("category %d has no name", i)
		}
		if c.MaxShare <= 0 || c.MaxShare > 1 {
			return fmt.Errorf("category %q: max_share must be in (0, 1]", c.Name)
		}
		if _, dup := r.byName[c.Name]; dup {
			return fmt.Errorf("duplicate category %q", c.Name)
		}
		r.byName[c.Name] = c
	}

	return nil
}

// Category looks up a category by name, case-insensitively.
func (r *FinancialRules) Category(name string) (Category, bool) {
	c, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Category{}, false
	}
	return *c, true
}

func (r *FinancialRules) Required() []string {
	var names []string
	for _, c := range r.Categories {
		if c.Required {
			names = append(names, c.Name)
		}
	}
	return names
}
