// Package catalog provides the regulatory defect catalog the scoring engine
// weighs issues against. Catalogs are immutable snapshots; a Store swaps
// snapshots atomically so the catalog file can be reloaded at runtime.
package catalog

import (
	"errors"
	"fmt"
	"sort"

	"github.com/matthewbaird/compliance/internal/types"
)

// Provider is the read-only capability the scoring engine consumes.
type Provider interface {
	// Weight returns the deduction weight of a category; ok is false when
	// the category is not in the catalog.
	Weight(category string) (weight float64, ok bool)
	// IsUnscored reports whether a category is advisory only.
	IsUnscored(category string) bool
	// SeverityPoints returns the unit-score points of a non-life-threatening
	// defect of the given severity.
	SeverityPoints(category string, severity types.Severity) (points float64, ok bool)
	// LifeThreateningMultiplier returns the factor applied to the points of
	// a life-threatening defect. Unknown categories return 1.
	LifeThreateningMultiplier(category string) float64
}

// ErrLookupMiss is the errors.Is target of LookupMissError.
var ErrLookupMiss = errors.New("catalog lookup miss")

// LookupMissError reports an issue category the catalog does not know.
type LookupMissError struct {
	Category string
	IssueID  string
}

func (e *LookupMissError) Error() string {
	return fmt.Sprintf("catalog lookup miss: category %q (issue %s)", e.Category, e.IssueID)
}

func (e *LookupMissError) Is(target error) bool { return target == ErrLookupMiss }

// Points holds the unit-score points per severity.
type Points struct {
	Severe   float64 `json:"severe"`
	Moderate float64 `json:"moderate"`
	Low      float64 `json:"low"`
}

func (p Points) of(s types.Severity) float64 {
	switch s {
	case types.SeveritySevere:
		return p.Severe
	case types.SeverityModerate:
		return p.Moderate
	case types.SeverityLow:
		return p.Low
	}
	return 0
}

// Category is one entry of the defect catalog.
type Category struct {
	Name                      string  `json:"name"`
	Weight                    float64 `json:"weight"`
	Unscored                  bool    `json:"unscored"`
	Points                    Points  `json:"points"`
	LifeThreateningMultiplier float64 `json:"life_threatening_multiplier"`
}

// Catalog is an immutable catalog snapshot. It implements Provider.
type Catalog struct {
	version    string
	categories map[string]Category
}

var _ Provider = (*Catalog)(nil)

// New validates categories and builds a snapshot. A multiplier of zero
// means "not specified" and is stored as 1.
func New(version string, categories []Category) (*Catalog, error) {
	c := &Catalog{version: version, categories: make(map[string]Category, len(categories))}
	for _, cat := range categories {
		if cat.Name == "" {
			return nil, fmt.Errorf("catalog %s: category with empty name", version)
		}
		if _, dup := c.categories[cat.Name]; dup {
			return nil, fmt.Errorf("catalog %s: duplicate category %q", version, cat.Name)
		}
		if cat.Weight < 0 || (!cat.Unscored && cat.Weight == 0) {
			return nil, fmt.Errorf("catalog %s: category %q: scored categories need a positive weight", version, cat.Name)
		}
		p := cat.Points
		if p.Severe <= 0 || p.Moderate <= 0 || p.Low <= 0 {
			return nil, fmt.Errorf("catalog %s: category %q: severity points must be positive", version, cat.Name)
		}
		if p.Severe < p.Moderate || p.Moderate < p.Low {
			return nil, fmt.Errorf("catalog %s: category %q: severity points must not increase as severity drops", version, cat.Name)
		}
		if cat.LifeThreateningMultiplier == 0 {
			cat.LifeThreateningMultiplier = 1
		}
		if cat.LifeThreateningMultiplier < 1 {
			return nil, fmt.Errorf("catalog %s: category %q: life-threatening multiplier below 1", version, cat.Name)
		}
		c.categories[cat.Name] = cat
	}
	return c, nil
}

// MustNew is New for static catalogs in tests and examples.
func MustNew(version string, categories []Category) *Catalog {
	c, err := New(version, categories)
	if err != nil {
		panic(err)
	}
	return c
}

// Version returns the catalog version label.
func (c *Catalog) Version() string { return c.version }

// Categories returns every category sorted by name.
func (c *Catalog) Categories() []Category {
	out := make([]Category, 0, len(c.categories))
	for _, cat := range c.categories {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *Catalog) Weight(category string) (float64, bool) {
	cat, ok := c.categories[category]
	if !ok {
		return 0, false
	}
	return cat.Weight, true
}

func (c *Catalog) IsUnscored(category string) bool {
	return c.categories[category].Unscored
}

func (c *Catalog) SeverityPoints(category string, severity types.Severity) (float64, bool) {
	cat, ok := c.categories[category]
	if !ok {
		return 0, false
	}
	return cat.Points.of(severity), true
}

func (c *Catalog) LifeThreateningMultiplier(category string) float64 {
	cat, ok := c.categories[category]
	if !ok {
		return 1
	}
	return cat.LifeThreateningMultiplier
}
