package feed

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/feedsim/feedsim/pkg/market"
)

// fakeClock hands out timer channels that fire only when the test says so.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()
	return ch
}

func (c *fakeClock) fire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.waiters) == 0 {
		return false
	}
	c.now = c.now.Add(time.Second)
	for _, ch := range c.waiters {
		ch <- c.now
	}
	c.waiters = nil
	return true
}

// mustFire waits for a pending timer to appear, then fires it.
func (c *fakeClock) mustFire(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !c.fire() {
		if time.Now().After(deadline) {
			t.Fatal("no pending timer to fire")
		}
		time.Sleep(time.Millisecond)
	}
}

func testEngineCatalog(t *testing.T) *market.Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "symbols.json")
	content := `[
	  {"symbol": "AAPL", "name": "Apple Inc.", "market": "NASDAQ", "closePrice": 180.12},
	  {"symbol": "GOOG", "name": "Alphabet Inc.", "market": "NASDAQ", "closePrice": 2750.50}
	]`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	c := market.NewCatalog(path, zap.NewNop().Sugar())
	if err := c.Load(); err != nil {
		t.Fatal(err)
	}
	return c
}

func newTestEngine(t *testing.T, clock *fakeClock) (*Engine, chan market.Tick) {
	t.Helper()
	e := NewEngine(testEngineCatalog(t), NewGenerator(), clock, zap.NewNop().Sugar(), Config{
		IntervalMin: 10 * time.Millisecond,
		IntervalMax: 20 * time.Millisecond,
		Variance:    0.05,
	})
	ticks := make(chan market.Tick, 32)
	e.SetBroadcast(func(_ string, tick market.Tick) {
		ticks <- tick
	})
	return e, ticks
}

func recvTick(t *testing.T, ticks chan market.Tick) market.Tick {
	t.Helper()
	select {
	case tick := <-ticks:
		return tick
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tick")
		return market.Tick{}
	}
}

func assertNoTick(t *testing.T, ticks chan market.Tick) {
	t.Helper()
	select {
	case tick := <-ticks:
		t.Fatalf("unexpected tick: %+v", tick)
	case <-time.After(100 * time.Millisecond):
	}
}

func assertWithinBand(t *testing.T, price, base, volatility float64) {
	t.Helper()
	min := base * (1 - volatility)
	max := base * (1 + volatility)
	if price < min-1e-9 || price > max+1e-9 {
		t.Fatalf("price %v outside band [%v, %v]", price, min, max)
	}
}

func TestSubscribeUnknownSymbol(t *testing.T) {
	e, _ := newTestEngine(t, newFakeClock())
	defer e.Shutdown()

	if err := e.Subscribe("c1", "TSLA"); err == nil {
		t.Fatal("expected error for unknown symbol")
	}
}

func TestSubscribeStartsLoopAndFiresImmediately(t *testing.T) {
	clock := newFakeClock()
	e, ticks := newTestEngine(t, clock)
	defer e.Shutdown()

	if err := e.Subscribe("c1", "aapl"); err != nil {
		t.Fatal(err)
	}

	tick := recvTick(t, ticks)
	if tick.Symbol != "AAPL" {
		t.Fatalf("symbol = %q, want AAPL", tick.Symbol)
	}
	assertWithinBand(t, tick.Price, 180.12, 0.05)
	if tick.Timestamp != clock.Now().Unix() {
		t.Fatalf("timestamp = %d, want %d", tick.Timestamp, clock.Now().Unix())
	}

	latest, ok := e.LatestTick("AAPL")
	if !ok || latest != tick {
		t.Fatalf("LatestTick = %+v, %v; want %+v", latest, ok, tick)
	}
	if n := e.SubscriberCount("AAPL"); n != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", n)
	}

	// Each tick's price is the base for the next one.
	clock.mustFire(t)
	next := recvTick(t, ticks)
	assertWithinBand(t, next.Price, tick.Price, 0.05)
}

func TestSecondSubscriberDoesNotReseed(t *testing.T) {
	clock := newFakeClock()
	e, ticks := newTestEngine(t, clock)
	defer e.Shutdown()

	if err := e.Subscribe("c1", "AAPL"); err != nil {
		t.Fatal(err)
	}
	first := recvTick(t, ticks)

	if err := e.Subscribe("c2", "AAPL"); err != nil {
		t.Fatal(err)
	}
	if n := e.SubscriberCount("AAPL"); n != 2 {
		t.Fatalf("SubscriberCount = %d, want 2", n)
	}

	// The walk continues from the last tick, not from the reference price.
	price, ok := e.CurrentPrice("AAPL")
	if !ok || price != first.Price {
		t.Fatalf("CurrentPrice = %v, %v; want %v", price, ok, first.Price)
	}
	assertNoTick(t, ticks)
}

func TestUnsubscribeStopsLoopAndResubscribeReseeds(t *testing.T) {
	clock := newFakeClock()
	e, ticks := newTestEngine(t, clock)
	defer e.Shutdown()

	if err := e.Subscribe("c1", "AAPL"); err != nil {
		t.Fatal(err)
	}
	recvTick(t, ticks)

	e.Unsubscribe("c1", "AAPL")
	if n := e.SubscriberCount("AAPL"); n != 0 {
		t.Fatalf("SubscriberCount = %d, want 0", n)
	}
	assertNoTick(t, ticks)

	// Re-subscribing seeds from the reference price again.
	if err := e.Subscribe("c1", "AAPL"); err != nil {
		t.Fatal(err)
	}
	tick := recvTick(t, ticks)
	assertWithinBand(t, tick.Price, 180.12, 0.05)
}

func TestUnsubscribeAll(t *testing.T) {
	clock := newFakeClock()
	e, ticks := newTestEngine(t, clock)
	defer e.Shutdown()

	if err := e.Subscribe("c1", "AAPL"); err != nil {
		t.Fatal(err)
	}
	if err := e.Subscribe("c1", "GOOG"); err != nil {
		t.Fatal(err)
	}
	recvTick(t, ticks)
	recvTick(t, ticks)

	e.UnsubscribeAll("c1")
	if syms := e.ActiveSymbols(); len(syms) != 0 {
		t.Fatalf("ActiveSymbols = %v, want none", syms)
	}
	assertNoTick(t, ticks)
}

func TestHistoryBoundedFIFO(t *testing.T) {
	clock := newFakeClock()
	e, ticks := newTestEngine(t, clock)
	defer e.Shutdown()

	if err := e.Subscribe("c1", "AAPL"); err != nil {
		t.Fatal(err)
	}

	const total = maxHistory + 100
	all := make([]market.Tick, 0, total)
	all = append(all, recvTick(t, ticks))
	for len(all) < total {
		clock.mustFire(t)
		all = append(all, recvTick(t, ticks))
	}

	hist := e.History("AAPL", total)
	if len(hist) != maxHistory {
		t.Fatalf("history length = %d, want %d", len(hist), maxHistory)
	}
	if hist[0] != all[total-maxHistory] {
		t.Fatalf("oldest retained tick = %+v, want %+v", hist[0], all[total-maxHistory])
	}
	if hist[len(hist)-1] != all[total-1] {
		t.Fatalf("newest retained tick = %+v, want %+v", hist[len(hist)-1], all[total-1])
	}

	// A smaller limit returns the most recent ticks, oldest to newest.
	tail := e.History("AAPL", 5)
	if len(tail) != 5 {
		t.Fatalf("tail length = %d, want 5", len(tail))
	}
	for i, tick := range tail {
		if tick != all[total-5+i] {
			t.Fatalf("tail[%d] = %+v, want %+v", i, tick, all[total-5+i])
		}
	}
}

func TestShutdownIdempotent(t *testing.T) {
	clock := newFakeClock()
	e, ticks := newTestEngine(t, clock)

	if err := e.Subscribe("c1", "AAPL"); err != nil {
		t.Fatal(err)
	}
	recvTick(t, ticks)

	e.Shutdown()
	e.Shutdown()
	assertNoTick(t, ticks)

	if err := e.Subscribe("c1", "AAPL"); err == nil {
		t.Fatal("expected error subscribing after shutdown")
	}
}
