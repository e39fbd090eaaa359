package orders

import (
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/feedsim/feedsim/pkg/ledger"
	"github.com/feedsim/feedsim/pkg/market"
	"github.com/feedsim/feedsim/pkg/util"
)

// Service validates and journals orders. Order ids come from a process-wide
// monotonic counter and reset on restart; the ledger itself is append-only.
type Service struct {
	validator *Validator
	catalog   *market.Catalog
	ledger    *ledger.Ledger
	clock     util.Clock
	log       *zap.SugaredLogger
	nextID    atomic.Int64
}

func NewService(validator *Validator, catalog *market.Catalog, led *ledger.Ledger, clock util.Clock, log *zap.SugaredLogger) *Service {
	return &Service{
		validator: validator,
		catalog:   catalog,
		ledger:    led,
		clock:     clock,
		log:       log,
	}
}

// Create validates req, assigns the next id, stamps the current time, and
// appends the order to the symbol's ledger. A ledger write failure
// propagates and the order is not considered placed.
func (s *Service) Create(req Request) (market.Order, error) {
	res := s.validator.Validate(req)
	if !res.Valid {
		return market.Order{}, &market.RejectedError{Errors: res.Errors}
	}

	order := market.Order{
		ID:        s.nextID.Add(1),
		Symbol:    strings.ToUpper(req.Symbol),
		Side:      req.Side,
		Qty:       int64(req.Qty),
		Price:     req.Price,
		Timestamp: s.clock.Now().Unix(),
	}

	if err := s.ledger.Append(order.Symbol, order); err != nil {
		return market.Order{}, fmt.Errorf("append order: %w", err)
	}

	s.log.Infow("order_created",
		"id", order.ID, "symbol", order.Symbol, "side", order.Side,
		"qty", order.Qty, "price", order.Price)
	return order, nil
}

// BySymbol returns the journaled orders for symbol in append order.
func (s *Service) BySymbol(symbol string) ([]market.Order, error) {
	upper := strings.ToUpper(symbol)
	if !s.catalog.Exists(upper) {
		return nil, fmt.Errorf("%w: %s", market.ErrSymbolNotFound, upper)
	}
	return s.ledger.Read(upper)
}
