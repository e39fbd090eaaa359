package market

import (
	"errors"
	"strings"
)

var (
	// ErrSymbolNotFound is returned for lookups against unknown symbol codes.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrCatalogLoad wraps failures to read or parse the symbols file.
	ErrCatalogLoad = errors.New("failed to load symbol catalog")

	// ErrLedgerCorrupt marks an orders file that exists but does not parse
	// as an order array. The read path logs it and treats the file as empty.
	ErrLedgerCorrupt = errors.New("orders file corrupt")
)

// RejectedError carries the individual validation failures for a rejected order.
type RejectedError struct {
	Errors []string
}

func (e *RejectedError) Error() string {
	return strings.Join(e.Errors, ", ")
}
