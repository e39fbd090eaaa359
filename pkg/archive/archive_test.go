package archive

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/feedsim/feedsim/pkg/market"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ticks"), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func tick(symbol string, price float64, ts int64) market.Tick {
	return market.Tick{Symbol: symbol, Price: price, Volume: 250, Timestamp: ts}
}

func TestRecentEmpty(t *testing.T) {
	s := newTestStore(t)
	ticks, err := s.Recent("AAPL", 10)
	require.NoError(t, err)
	assert.Empty(t, ticks)
}

func TestPutRecentNewestFirst(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Put(tick("AAPL", 180.00, 100)))
	require.NoError(t, s.Put(tick("AAPL", 181.50, 101)))
	require.NoError(t, s.Put(tick("AAPL", 179.75, 102)))

	ticks, err := s.Recent("AAPL", 2)
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.Equal(t, int64(102), ticks[0].Timestamp)
	assert.Equal(t, int64(101), ticks[1].Timestamp)
}

func TestRecentSameSecondOrdering(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Put(tick("AAPL", 180.00, 100)))
	require.NoError(t, s.Put(tick("AAPL", 181.00, 100)))

	ticks, err := s.Recent("AAPL", 10)
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	// The sequence number breaks the tie: later Put comes back first.
	assert.Equal(t, 181.00, ticks[0].Price)
	assert.Equal(t, 180.00, ticks[1].Price)
}

func TestSymbolsAreIsolated(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Put(tick("AAPL", 180.00, 100)))
	require.NoError(t, s.Put(tick("GOOG", 2750.00, 100)))

	aapl, err := s.Recent("AAPL", 10)
	require.NoError(t, err)
	require.Len(t, aapl, 1)
	assert.Equal(t, "AAPL", aapl[0].Symbol)

	none, err := s.Recent("MSFT", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
