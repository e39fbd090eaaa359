package feed

import (
	"math"
	"testing"
	"time"
)

func TestNextPriceStaysWithinVolatilityBand(t *testing.T) {
	g := NewGenerator()
	base := 180.12
	volatility := 0.05
	min := base * (1 - volatility)
	max := base * (1 + volatility)

	for i := 0; i < 500; i++ {
		p := g.NextPrice("AAPL", base, volatility)
		if p < min-1e-9 || p > max+1e-9 {
			t.Fatalf("price %v outside band [%v, %v] at iteration %d", p, min, max, i)
		}
	}
}

func TestNextPriceWalkStaysWithinBandOfPreviousPrice(t *testing.T) {
	g := NewGenerator()
	volatility := 0.05
	price := 43250.00

	for i := 0; i < 200; i++ {
		next := g.NextPrice("BTC-USD", price, volatility)
		min := price * (1 - volatility)
		max := price * (1 + volatility)
		if next < min-1e-9 || next > max+1e-9 {
			t.Fatalf("step %d: price %v outside band [%v, %v]", i, next, min, max)
		}
		price = next
	}
}

func TestNextPricePrecision(t *testing.T) {
	tests := []struct {
		name   string
		symbol string
		base   float64
		scale  float64
	}{
		{"stock rounds to 2 decimals", "AAPL", 180.12, 100},
		{"large quote pair rounds to 2 decimals", "BTC-USD", 43250.00, 100},
		{"sub-dollar quote pair rounds to 4 decimals", "DOGE-USD", 0.08, 10000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator()
			for i := 0; i < 100; i++ {
				p := g.NextPrice(tt.symbol, tt.base, 0.05)
				scaled := p * tt.scale
				if math.Abs(scaled-math.Round(scaled)) > 1e-6 {
					t.Fatalf("price %v not rounded to 1/%v", p, tt.scale)
				}
			}
		})
	}
}

func TestNextVolumeRanges(t *testing.T) {
	tests := []struct {
		symbol string
		lo, hi int64
	}{
		{"BTC-USD", 10, 60},
		{"ETH-USD", 50, 250},
		{"EUR-USD", 1000, 11000},
		{"AAPL", 100, 600},
	}
	g := NewGenerator()
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			for i := 0; i < 200; i++ {
				v := g.NextVolume(tt.symbol)
				if v < tt.lo || v > tt.hi {
					t.Fatalf("volume %d outside [%d, %d]", v, tt.lo, tt.hi)
				}
			}
		})
	}
}

func TestRandomInterval(t *testing.T) {
	g := NewGenerator()
	min := 1000 * time.Millisecond
	max := 2000 * time.Millisecond

	for i := 0; i < 200; i++ {
		d := g.RandomInterval(min, max)
		if d < min || d > max {
			t.Fatalf("interval %v outside [%v, %v]", d, min, max)
		}
	}

	if d := g.RandomInterval(min, min); d != min {
		t.Fatalf("degenerate range: got %v, want %v", d, min)
	}
}
