package oracle

import (
	"errors"
)

// ErrNoPrice is returned when a currency has no oracle price yet.
var ErrNoPrice = errors.New("no oracle price for currency")

// PriceSource is what the core consults at validation time. Prices are
// read fresh per operation, never cached across commands.
type PriceSource interface {
	GetPrice(currencyID string) (int64, bool)
}

// PriceState tracks the latest oracle price per currency
type PriceState struct {
	Price         int64
	PriceSequence int64
	Timestamp     int64
}

// PriceTable is the in-memory oracle fed by the price event stream.
// It is only mutated inside the core loop, so it carries no locking.
type PriceTable struct {
	prices map[string]*PriceState
}

func NewPriceTable() *PriceTable {
	return &PriceTable{
		prices: make(map[string]*PriceState),
	}
}

// UpdatePrice processes a price update. Stale and duplicate sequences
// are silently ignored; gaps are accepted (price gaps are tolerable,
// the feed is a sampled series, not a transaction log).
func (pt *PriceTable) UpdatePrice(currencyID string, price int64, sequence int64, timestamp int64) bool {
	current := pt.prices[currencyID]

	if current != nil && sequence <= current.PriceSequence {
		return false
	}

	pt.prices[currencyID] = &PriceState{
		Price:         price,
		PriceSequence: sequence,
		Timestamp:     timestamp,
	}

	return true
}

// GetPrice returns the current price for a currency
func (pt *PriceTable) GetPrice(currencyID string) (int64, bool) {
	state := pt.prices[currencyID]
	if state == nil {
		return 0, false
	}
	return state.Price, true
}

// GetPriceState returns the full price record (sequence and timestamp)
func (pt *PriceTable) GetPriceState(currencyID string) (*PriceState, bool) {
	state := pt.prices[currencyID]
	if state == nil {
		return nil, false
	}
	return state, true
}

// GetAllPrices returns all price states (for snapshot creation)
func (pt *PriceTable) GetAllPrices() map[string]*PriceState {
	result := make(map[string]*PriceState, len(pt.prices))
	for k, v := range pt.prices {
		result[k] = v
	}
	return result
}

// RestorePrice directly sets a price state (used for snapshot restore)
func (pt *PriceTable) RestorePrice(currencyID string, ps *PriceState) {
	pt.prices[currencyID] = ps
}
