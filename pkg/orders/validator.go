package orders

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/feedsim/feedsim/pkg/market"
)

// Request is an order submission before validation. Qty is a float so a
// non-integral JSON quantity can be rejected rather than truncated.
type Request struct {
	Symbol string      `json:"symbol"`
	Side   market.Side `json:"side"`
	Qty    float64     `json:"qty"`
	Price  float64     `json:"price"`
}

type Result struct {
	Valid  bool
	Errors []string
}

// Validator checks order requests against the symbol catalog. Validate has
// no side effects; identical input yields identical output.
type Validator struct {
	catalog  *market.Catalog
	variance float64
}

func NewValidator(catalog *market.Catalog, variance float64) *Validator {
	return &Validator{catalog: catalog, variance: variance}
}

func (v *Validator) Validate(req Request) Result {
	var errs []string
	upper := strings.ToUpper(req.Symbol)

	// An unknown symbol short-circuits: there is no reference price to
	// check the remaining rules against.
	if !v.catalog.Exists(upper) {
		return Result{Errors: []string{fmt.Sprintf("symbol %s not found", upper)}}
	}

	if req.Qty <= 0 {
		errs = append(errs, "qty must be greater than 0")
	}
	if req.Qty != math.Trunc(req.Qty) {
		errs = append(errs, "qty must be an integer")
	}

	if req.Price <= 0 {
		errs = append(errs, "price must be greater than 0")
	}

	band, err := v.catalog.PriceBand(upper, v.variance)
	if err != nil {
		errs = append(errs, fmt.Sprintf("error validating price band: %v", err))
	} else {
		price := decimal.NewFromFloat(req.Price)
		min := decimal.NewFromFloat(band.Min)
		max := decimal.NewFromFloat(band.Max)
		// Band boundaries are inclusive.
		if price.LessThan(min) || price.GreaterThan(max) {
			errs = append(errs, fmt.Sprintf(
				"price must be within ±%.0f%% of %s reference price (allowed: %.2f to %.2f)",
				v.variance*100, upper, band.Min, band.Max))
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}
