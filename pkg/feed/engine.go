package feed

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/feedsim/feedsim/pkg/market"
	"github.com/feedsim/feedsim/pkg/util"
)

// maxHistory bounds the in-memory tick history per symbol. Oldest entries
// are evicted first.
const maxHistory = 1000

// BroadcastFunc is the fan-out sink for generated ticks. Until one is set,
// ticks are generated and stored but not delivered externally.
type BroadcastFunc func(symbol string, tick market.Tick)

type Config struct {
	IntervalMin time.Duration
	IntervalMax time.Duration
	Variance    float64
}

// Engine owns the per-symbol simulation lifecycle. A symbol is idle until
// its first subscriber arrives, runs one tick loop goroutine while it has
// subscribers, and goes idle again when the last one leaves.
type Engine struct {
	catalog *market.Catalog
	gen     *Generator
	clock   util.Clock
	log     *zap.SugaredLogger
	cfg     Config

	mu        sync.Mutex
	symbols   map[string]*symbolState
	broadcast BroadcastFunc
	down      bool
}

type symbolState struct {
	subscribers map[string]struct{}
	price       float64
	history     []market.Tick
	// stop is non-nil while the tick loop runs; closing it cancels the
	// pending timer.
	stop chan struct{}
}

func NewEngine(catalog *market.Catalog, gen *Generator, clock util.Clock, log *zap.SugaredLogger, cfg Config) *Engine {
	return &Engine{
		catalog: catalog,
		gen:     gen,
		clock:   clock,
		log:     log,
		cfg:     cfg,
		symbols: make(map[string]*symbolState),
	}
}

// SetBroadcast wires in the fan-out sink.
func (e *Engine) SetBroadcast(fn BroadcastFunc) {
	e.mu.Lock()
	e.broadcast = fn
	e.mu.Unlock()
}

// Subscribe registers connID for symbol ticks. The first subscriber seeds
// the current price from the catalog reference price and starts the loop;
// the first tick fires immediately.
func (e *Engine) Subscribe(connID, symbol string) error {
	upper := strings.ToUpper(symbol)
	ref, err := e.catalog.ReferencePrice(upper)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.down {
		return fmt.Errorf("tick engine is shut down")
	}

	st := e.symbols[upper]
	if st == nil {
		st = &symbolState{subscribers: make(map[string]struct{})}
		e.symbols[upper] = st
	}
	st.subscribers[connID] = struct{}{}

	if len(st.subscribers) == 1 && st.stop == nil {
		st.price = ref
		stop := make(chan struct{})
		st.stop = stop
		go e.run(upper, stop)
		e.log.Infow("tick_loop_started", "symbol", upper, "seed_price", ref)
	}

	e.log.Debugw("subscriber_added", "conn", connID, "symbol", upper, "count", len(st.subscribers))
	return nil
}

// Unsubscribe removes connID's subscription for one symbol. The last
// subscriber leaving cancels the symbol's pending timer.
func (e *Engine) Unsubscribe(connID, symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dropLocked(connID, strings.ToUpper(symbol))
}

// UnsubscribeAll removes connID from every symbol's subscriber set.
func (e *Engine) UnsubscribeAll(connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for symbol := range e.symbols {
		e.dropLocked(connID, symbol)
	}
}

func (e *Engine) dropLocked(connID, symbol string) {
	st := e.symbols[symbol]
	if st == nil {
		return
	}
	if _, ok := st.subscribers[connID]; !ok {
		return
	}
	delete(st.subscribers, connID)
	if len(st.subscribers) == 0 && st.stop != nil {
		close(st.stop)
		st.stop = nil
		e.log.Infow("tick_loop_stopped", "symbol", symbol)
	}
}

// run is the per-symbol tick loop. Exactly one instance runs per active
// symbol, so ticks for a symbol never overlap.
func (e *Engine) run(symbol string, stop chan struct{}) {
	for {
		if !e.step(symbol, stop) {
			return
		}
		d := e.gen.RandomInterval(e.cfg.IntervalMin, e.cfg.IntervalMax)
		select {
		case <-stop:
			return
		case <-e.clock.After(d):
		}
	}
}

// step produces one tick: generation N's price becomes the base for N+1.
func (e *Engine) step(symbol string, stop chan struct{}) bool {
	e.mu.Lock()
	st := e.symbols[symbol]
	if st == nil || st.stop != stop {
		e.mu.Unlock()
		return false
	}
	base := st.price
	e.mu.Unlock()

	// Only this goroutine advances the symbol's price while its loop is
	// active, so generating outside the lock is safe.
	tick := market.Tick{
		Symbol:    symbol,
		Price:     e.gen.NextPrice(symbol, base, e.cfg.Variance),
		Volume:    e.gen.NextVolume(symbol),
		Timestamp: e.clock.Now().Unix(),
	}

	e.mu.Lock()
	st = e.symbols[symbol]
	if st == nil || st.stop != stop {
		e.mu.Unlock()
		return false
	}
	st.price = tick.Price
	st.history = append(st.history, tick)
	if len(st.history) > maxHistory {
		st.history = st.history[len(st.history)-maxHistory:]
	}
	cb := e.broadcast
	e.mu.Unlock()

	if cb != nil {
		cb(symbol, tick)
	}
	return true
}

// LatestTick returns the most recent tick for symbol, or false if none has
// been produced yet.
func (e *Engine) LatestTick(symbol string) (market.Tick, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.symbols[strings.ToUpper(symbol)]
	if st == nil || len(st.history) == 0 {
		return market.Tick{}, false
	}
	return st.history[len(st.history)-1], true
}

// History returns the most recent min(limit, available) ticks for symbol,
// ordered oldest to newest.
func (e *Engine) History(symbol string, limit int) []market.Tick {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.symbols[strings.ToUpper(symbol)]
	if st == nil || limit <= 0 {
		return []market.Tick{}
	}
	n := limit
	if n > len(st.history) {
		n = len(st.history)
	}
	out := make([]market.Tick, n)
	copy(out, st.history[len(st.history)-n:])
	return out
}

// CurrentPrice returns the last stored price for symbol, false if the
// symbol has never been seeded.
func (e *Engine) CurrentPrice(symbol string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.symbols[strings.ToUpper(symbol)]
	if st == nil || st.price <= 0 {
		return 0, false
	}
	return st.price, true
}

func (e *Engine) SubscriberCount(symbol string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.symbols[strings.ToUpper(symbol)]
	if st == nil {
		return 0
	}
	return len(st.subscribers)
}

// ActiveSymbols lists symbols with a running tick loop.
func (e *Engine) ActiveSymbols() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for symbol, st := range e.symbols {
		if st.stop != nil {
			out = append(out, symbol)
		}
	}
	return out
}

// Shutdown cancels all pending per-symbol timers and clears subscriber and
// price state. Idempotent.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.down {
		return
	}
	e.down = true
	for symbol, st := range e.symbols {
		if st.stop != nil {
			close(st.stop)
			st.stop = nil
			e.log.Infow("tick_loop_stopped", "symbol", symbol)
		}
	}
	e.symbols = make(map[string]*symbolState)
	e.log.Infow("tick_engine_shutdown")
}
