package market

// Symbol is one tradeable instrument. Loaded once at startup and
// immutable afterwards.
type Symbol struct {
	Code       string  `json:"symbol"`
	Name       string  `json:"name"`
	Market     string  `json:"market"`
	ClosePrice float64 `json:"closePrice"`
}

// Tick is one simulated trade event.
type Tick struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Volume    int64   `json:"volume"`
	Timestamp int64   `json:"timestamp"` // unix seconds
}

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Order is a journaled order. Never updated or deleted once written.
type Order struct {
	ID        int64   `json:"id"`
	Symbol    string  `json:"symbol"`
	Side      Side    `json:"side"`
	Qty       int64   `json:"qty"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"` // unix seconds
}

// PriceBand is the inclusive [Min, Max] range around a reference price.
type PriceBand struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}
