// Package catalog holds the fixed category → product table that sales are
// drawn from.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

var (
	ErrEmpty           = errors.New("catalog has no categories")
	ErrUnknownCategory = errors.New("unknown category")
	ErrInvalidCatalog  = errors.New("invalid catalog")
)

type Category struct {
	Name     string   `yaml:"name" json:"name"`
	Products []string `yaml:"products" json:"products"`
}

// Catalog keeps categories in declaration order so that a seeded generator
// produces the same sequence on every run.
type Catalog struct {
	Categories []Category `yaml:"categories" json:"categories"`
}

func Default() *Catalog {
	return &Catalog{
		Categories: []Category{
			{Name: "Eletrônicos", Products: []string{"Laptop X1", "Smartphone Z", "Fone TWS", "Smartwatch V5"}},
			{Name: "Livros", Products: []string{"A Arte da Guerra", "Guia do Mochileiro", "Sapiens", "Duna"}},
			{Name: "Casa", Products: []string{"Lâmpada Smart", "Cadeira Gamer", "Mesa Digitalizadora", "Cafeteira"}},
		},
	}
}

// Load reads a YAML catalog file of the form
//
//	categories:
//	  - name: Livros
//	    products: [Sapiens, Duna]
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) Validate() error {
	if c == nil || len(c.Categories) == 0 {
		return ErrEmpty
	}

	seen := make(map[string]bool, len(c.Categories))
	for i, cat := range c.Categories {
		if cat.Name == "" {
			return fmt.Errorf("%w: category %d has no name", ErrInvalidCatalog, i)
		}
		if seen[cat.Name] {
			return fmt.Errorf("%w: duplicate category %q", ErrInvalidCatalog, cat.Name)
		}
		seen[cat.Name] = true

		if len(cat.Products) == 0 {
			return fmt.Errorf("%w: category %q has no products", ErrInvalidCatalog, cat.Name)
		}
		for _, p := range cat.Products {
			if p == "" {
				return fmt.Errorf("%w: category %q has an empty product name", ErrInvalidCatalog, cat.Name)
			}
		}
	}
	return nil
}

// Names returns the category names in declaration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Categories))
	for i, cat := range c.Categories {
		names[i] = cat.Name
	}
	return names
}

func (c *Catalog) Products(category string) ([]string, error) {
	for _, cat := range c.Categories {
		if cat.Name == category {
			return cat.Products, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
}

// Contains reports whether product is listed under category.
func (c *Catalog) Contains(category, product string) bool {
	products, err := c.Products(category)
	if err != nil {
		return false
	}
	return slices.Contains(products, product)
}
