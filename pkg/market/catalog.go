package market

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Catalog holds the static symbol set. Load populates it once; after that
// it is read-only and safe for concurrent readers.
type Catalog struct {
	path string
	log  *zap.SugaredLogger

	mu      sync.RWMutex
	symbols map[string]Symbol
	all     []Symbol
}

func NewCatalog(path string, log *zap.SugaredLogger) *Catalog {
	return &Catalog{
		path:    path,
		log:     log,
		symbols: make(map[string]Symbol),
	}
}

// Load reads the symbols JSON array from disk and builds the lookup cache.
func (c *Catalog) Load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrCatalogLoad, c.path, err)
	}

	var symbols []Symbol
	if err := json.Unmarshal(data, &symbols); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrCatalogLoad, c.path, err)
	}

	for _, s := range symbols {
		if s.Code == "" || s.ClosePrice <= 0 {
			return fmt.Errorf("%w: symbol entry missing code or close price", ErrCatalogLoad)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.all = symbols
	c.symbols = make(map[string]Symbol, len(symbols))
	for _, s := range symbols {
		c.symbols[strings.ToUpper(s.Code)] = s
	}

	c.log.Infow("symbols_loaded", "count", len(symbols), "file", c.path)
	return nil
}

// All returns the symbols in file order.
func (c *Catalog) All() []Symbol {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Symbol, len(c.all))
	copy(out, c.all)
	return out
}

func (c *Catalog) Get(code string) (Symbol, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.symbols[strings.ToUpper(code)]
	return s, ok
}

func (c *Catalog) Exists(code string) bool {
	_, ok := c.Get(code)
	return ok
}

// ReferencePrice returns the close price the simulated walk and the order
// price band are anchored on.
func (c *Catalog) ReferencePrice(code string) (float64, error) {
	s, ok := c.Get(code)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrSymbolNotFound, strings.ToUpper(code))
	}
	return s.ClosePrice, nil
}

// PriceBand returns the inclusive [ref*(1-variance), ref*(1+variance)] range.
func (c *Catalog) PriceBand(code string, variance float64) (PriceBand, error) {
	ref, err := c.ReferencePrice(code)
	if err != nil {
		return PriceBand{}, err
	}
	return PriceBand{
		Min: ref * (1 - variance),
		Max: ref * (1 + variance),
	}, nil
}
