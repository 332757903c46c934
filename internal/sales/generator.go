package sales

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/bit2swaz/salesflood/internal/catalog"
)

var ErrInvalidRange = errors.New("invalid range")

// Range is an inclusive integer interval. The zero Range stands for the
// default range of the field it is assigned to, so a constant zero price
// cannot be requested.
type Range struct {
	Min int64
	Max int64
}

// check rejects ranges below floor, inverted ranges and spans too wide to
// draw from.
func (r Range) check(floor int64) error {
	if r.Min < floor || r.Min > r.Max {
		return ErrInvalidRange
	}
	if r.Max-r.Min == math.MaxInt64 {
		return ErrInvalidRange
	}
	return nil
}

var (
	DefaultPriceRange    = Range{Min: 5000, Max: 250000}
	DefaultQuantityRange = Range{Min: 1, Max: 5}
)

type GeneratorConfig struct {
	Catalog  *catalog.Catalog
	Price    Range
	Quantity Range
	// Rand defaults to a randomly seeded PCG source.
	Rand *rand.Rand
	// Now defaults to time.Now.
	Now func() time.Time
}

// Generator draws sale records uniformly from a catalog. It is not safe for
// concurrent use.
type Generator struct {
	catalog  *catalog.Catalog
	price    Range
	quantity Range
	rnd      *rand.Rand
	now      func() time.Time
}

func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.Catalog == nil {
		cfg.Catalog = catalog.Default()
	}
	if err := cfg.Catalog.Validate(); err != nil {
		return nil, err
	}

	if cfg.Price == (Range{}) {
		cfg.Price = DefaultPriceRange
	}
	if cfg.Quantity == (Range{}) {
		cfg.Quantity = DefaultQuantityRange
	}
	if err := cfg.Price.check(0); err != nil {
		return nil, fmt.Errorf("%w: price %d..%d", err, cfg.Price.Min, cfg.Price.Max)
	}
	if err := cfg.Quantity.check(1); err != nil {
		return nil, fmt.Errorf("%w: quantity %d..%d", err, cfg.Quantity.Min, cfg.Quantity.Max)
	}

	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Generator{
		catalog:  cfg.Catalog,
		price:    cfg.Price,
		quantity: cfg.Quantity,
		rnd:      cfg.Rand,
		now:      cfg.Now,
	}, nil
}

// NewSeededRand returns a deterministic source for reproducible runs.
func NewSeededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// Next picks the category first and then a product from that category's
// list, so the pair is always consistent with the catalog.
func (g *Generator) Next() Record {
	cat := g.catalog.Categories[g.rnd.IntN(len(g.catalog.Categories))]
	product := cat.Products[g.rnd.IntN(len(cat.Products))]

	return Record{
		Product:   product,
		Category:  cat.Name,
		UnitPrice: g.between(g.price),
		Quantity:  g.between(g.quantity),
		SoldAt:    g.now(),
	}
}

func (g *Generator) between(r Range) int64 {
	return r.Min + g.rnd.Int64N(r.Max-r.Min+1)
}
