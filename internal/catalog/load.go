package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaSource string

type fileCategory struct {
	Weight                    float64 `json:"weight"`
	Unscored                  bool    `json:"unscored"`
	Points                    Points  `json:"points"`
	LifeThreateningMultiplier float64 `json:"life_threatening_multiplier"`
}

type file struct {
	Version    string                  `json:"version"`
	Categories map[string]fileCategory `json:"categories"`
}

// Parse compiles CUE catalog source, validates it against the catalog
// schema, and builds a snapshot.
func Parse(src []byte, filename string) (*Catalog, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compiling catalog schema: %w", err)
	}
	data := ctx.CompileBytes(src, cue.Filename(filename))
	if err := data.Err(); err != nil {
		return nil, fmt.Errorf("compiling catalog %s: %w", filename, err)
	}

	v := schema.LookupPath(cue.ParsePath("#Catalog")).Unify(data)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validating catalog %s: %w", filename, err)
	}

	var f file
	if err := v.Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding catalog %s: %w", filename, err)
	}

	categories := make([]Category, 0, len(f.Categories))
	for name, fc := range f.Categories {
		categories = append(categories, Category{
			Name:                      name,
			Weight:                    fc.Weight,
			Unscored:                  fc.Unscored,
			Points:                    fc.Points,
			LifeThreateningMultiplier: fc.LifeThreateningMultiplier,
		})
	}
	return New(f.Version, categories)
}

// LoadFile reads and parses a CUE catalog file.
func LoadFile(path string) (*Catalog, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return Parse(src, path)
}
