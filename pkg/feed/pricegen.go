package feed

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// priceHistorySize bounds the per-symbol rolling window the momentum
	// term is computed from.
	priceHistorySize = 10

	// momentumClamp caps the trend contribution at ±2% of the base price
	// so a run of same-direction ticks cannot drift the walk away.
	momentumClamp = 0.02
)

// Generator produces simulated prices and volumes. Safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	rng     *rand.Rand
	history map[string][]float64
}

func NewGenerator() *Generator {
	return &Generator{
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		history: make(map[string][]float64),
	}
}

// NextPrice computes a bounded random walk step from base. The result is
// always within [base*(1-volatility), base*(1+volatility)] and rounded to
// 2 decimals (4 for sub-$1 quote-currency pairs).
func (g *Generator) NextPrice(symbol string, base, volatility float64) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	history := g.history[symbol]

	// Short-term momentum from the last up-to-3 prices.
	trendFactor := 0.0
	if len(history) >= 2 {
		recent := history
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		trend := 0.0
		for i := 1; i < len(recent); i++ {
			trend += recent[i] - recent[i-1]
		}
		trendFactor = clamp(trend/base, -momentumClamp, momentumClamp)
	}

	randomFactor := g.rng.Float64()*2 - 1 // uniform in [-1, 1]
	price := base + base*volatility*randomFactor + base*trendFactor

	min := base * (1 - volatility)
	max := base * (1 + volatility)
	price = clamp(price, min, max)
	price = roundWithinBand(symbol, price, base, min, max)

	history = append(history, price)
	if len(history) > priceHistorySize {
		history = history[len(history)-priceHistorySize:]
	}
	g.history[symbol] = history

	return price
}

// NextVolume draws a synthetic volume from a symbol-class-dependent range.
func (g *Generator) NextVolume(symbol string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	var v float64
	switch {
	case strings.Contains(symbol, "BTC"):
		v = g.rng.Float64()*50 + 10
	case strings.Contains(symbol, "ETH"):
		v = g.rng.Float64()*200 + 50
	case strings.Contains(symbol, "USD"):
		v = g.rng.Float64()*10000 + 1000
	default:
		v = g.rng.Float64()*500 + 100
	}
	return int64(v)
}

// RandomInterval returns a uniform duration in [min, max] inclusive,
// with millisecond granularity.
func (g *Generator) RandomInterval(min, max time.Duration) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	lo := min.Milliseconds()
	hi := max.Milliseconds()
	if hi <= lo {
		return min
	}
	ms := g.rng.Int63n(hi-lo+1) + lo
	return time.Duration(ms) * time.Millisecond
}

func pricePrecision(symbol string, base float64) int32 {
	if strings.Contains(symbol, "USD") && base < 1 {
		return 4
	}
	return 2
}

// roundWithinBand rounds to the symbol's price precision without letting
// the rounding step escape the [min, max] volatility band.
func roundWithinBand(symbol string, price, base, min, max float64) float64 {
	prec := pricePrecision(symbol, base)
	rounded := decimal.NewFromFloat(price).Round(prec)

	if rounded.GreaterThan(decimal.NewFromFloat(max)) {
		rounded = decimal.NewFromFloat(max).RoundFloor(prec)
	}
	if rounded.LessThan(decimal.NewFromFloat(min)) {
		rounded = decimal.NewFromFloat(min).RoundCeil(prec)
	}
	return rounded.InexactFloat64()
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
