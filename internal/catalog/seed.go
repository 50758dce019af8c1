package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Seed is the on-disk catalog fixture.
type Seed struct {
	Grades   []Grade   `yaml:"grades"`
	Products []Product `yaml:"products"`
}

// LoadSeed reads a YAML catalog fixture.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read catalog seed: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes and validates a YAML catalog fixture.
func ParseSeed(data []byte) (Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse catalog seed: %w", err)
	}
	grades := make(map[string]struct{}, len(seed.Grades))
	for i, g := range seed.Grades {
		g.ID = strings.TrimSpace(g.ID)
		if g.ID == "" {
			return Seed{}, fmt.Errorf("grade %d: id required", i)
		}
		seed.Grades[i] = g
		grades[g.ID] = struct{}{}
	}
	for i, p := range seed.Products {
		p.Barcode = strings.TrimSpace(p.Barcode)
		if p.Barcode == "" {
			return Seed{}, fmt.Errorf("product %d: barcode required", i)
		}
		if p.SugarGrams < 0 {
			return Seed{}, fmt.Errorf("product %s: sugar_grams must be non-negative", p.Barcode)
		}
		if p.GradeID != "" {
			if _, ok := grades[p.GradeID]; !ok {
				return Seed{}, fmt.Errorf("product %s: unknown grade %q", p.Barcode, p.GradeID)
			}
		}
		seed.Products[i] = p
	}
	return seed, nil
}

// Apply upserts every grade and product into store. Grades go first so
// products can reference them.
func (s Seed) Apply(ctx context.Context, store Store) error {
	for _, g := range s.Grades {
		if err := store.UpsertGrade(ctx, g); err != nil {
			return fmt.Errorf("seed grade %s: %w", g.ID, err)
		}
	}
	for _, p := range s.Products {
		if err := store.UpsertProduct(ctx, p); err != nil {
			return fmt.Errorf("seed product %s: %w", p.Barcode, err)
		}
	}
	return nil
}
