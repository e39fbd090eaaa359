// Package archive keeps a best-effort on-disk trail of generated ticks in
// pebble, so recent feed activity survives beyond the in-memory history.
// Writes are NoSync: the archive carries no durability guarantee.
package archive

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/feedsim/feedsim/pkg/market"
)

// Key schema:
//   t:<symbol>:<timestamp>:<seq> → Tick (JSON)
// Timestamp and seq are zero-padded for lexicographic ordering; seq breaks
// ties between ticks generated in the same second.
const prefixTick = "t:"

type Store struct {
	db  *pebble.DB
	log *zap.SugaredLogger
	seq atomic.Uint64
}

func Open(path string, log *zap.SugaredLogger) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open tick archive: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func tickKey(symbol string, timestamp int64, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%020d", prefixTick, symbol, timestamp, seq))
}

func tickPrefix(symbol string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTick, symbol))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// Put archives one tick.
func (s *Store) Put(tick market.Tick) error {
	data, err := json.Marshal(tick)
	if err != nil {
		return fmt.Errorf("marshal tick: %w", err)
	}

	key := tickKey(tick.Symbol, tick.Timestamp, s.seq.Add(1))
	if err := s.db.Set(key, data, pebble.NoSync); err != nil {
		return fmt.Errorf("archive tick: %w", err)
	}
	return nil
}

// Recent returns up to limit archived ticks for symbol, newest first.
func (s *Store) Recent(symbol string, limit int) ([]market.Tick, error) {
	prefix := tickPrefix(symbol)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("scan tick archive: %w", err)
	}
	defer iter.Close()

	ticks := make([]market.Tick, 0, limit)
	for iter.Last(); iter.Valid() && len(ticks) < limit; iter.Prev() {
		var tick market.Tick
		if err := json.Unmarshal(iter.Value(), &tick); err != nil {
			s.log.Warnw("archived_tick_corrupt", "symbol", symbol, "err", err)
			continue
		}
		ticks = append(ticks, tick)
	}
	return ticks, nil
}
