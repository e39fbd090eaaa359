// Package ledger persists orders as one JSON array file per symbol.
// Writes are replace-on-write: the full array is written to a temp file in
// the orders directory, then atomically renamed over the destination.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/feedsim/feedsim/pkg/market"
)

var symbolChars = regexp.MustCompile(`[^A-Z0-9-]`)

// Sanitize strips everything except [A-Z0-9-] from an uppercased symbol
// code. Applied before every path construction to prevent traversal.
func Sanitize(symbol string) string {
	return symbolChars.ReplaceAllString(strings.ToUpper(symbol), "")
}

type Ledger struct {
	dir string
	log *zap.SugaredLogger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(dir string, log *zap.SugaredLogger) *Ledger {
	return &Ledger{
		dir:   dir,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
}

// EnsureReady creates the backing directory hierarchy if absent. Idempotent.
func (l *Ledger) EnsureReady() error {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("create orders directory: %w", err)
	}
	return nil
}

// symbolLock serializes read-modify-write cycles per symbol so concurrent
// appends for the same symbol cannot lose updates.
func (l *Ledger) symbolLock(code string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk := l.locks[code]
	if lk == nil {
		lk = &sync.Mutex{}
		l.locks[code] = lk
	}
	return lk
}

func (l *Ledger) path(code string) string {
	return filepath.Join(l.dir, code+".json")
}

// Read returns the orders for symbol in append order. A missing file yields
// an empty slice; a file that does not parse as an order array is logged
// and treated as empty so reads stay resilient.
func (l *Ledger) Read(symbol string) ([]market.Order, error) {
	code := Sanitize(symbol)
	data, err := os.ReadFile(l.path(code))
	if err != nil {
		if os.IsNotExist(err) {
			return []market.Order{}, nil
		}
		return nil, fmt.Errorf("read orders for %s: %w", code, err)
	}

	var orders []market.Order
	if err := json.Unmarshal(data, &orders); err != nil {
		l.log.Warnw("orders_file_corrupt", "symbol", code,
			"err", fmt.Errorf("%w: %v", market.ErrLedgerCorrupt, err))
		return []market.Order{}, nil
	}
	return orders, nil
}

// Append reads the symbol's orders, appends one, and writes the full array
// back atomically. A failed write never corrupts the previously committed
// file.
func (l *Ledger) Append(symbol string, order market.Order) error {
	code := Sanitize(symbol)
	lk := l.symbolLock(code)
	lk.Lock()
	defer lk.Unlock()

	orders, err := l.Read(code)
	if err != nil {
		return err
	}
	orders = append(orders, order)
	return l.write(code, orders)
}

func (l *Ledger) write(code string, orders []market.Order) error {
	data, err := json.MarshalIndent(orders, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal orders for %s: %w", code, err)
	}

	tmp, err := os.CreateTemp(l.dir, code+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp orders file for %s: %w", code, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write orders for %s: %w", code, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp orders file for %s: %w", code, err)
	}
	if err := os.Rename(tmpName, l.path(code)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit orders for %s: %w", code, err)
	}

	l.log.Debugw("orders_written", "symbol", code, "count", len(orders))
	return nil
}
