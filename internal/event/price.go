package event

import "fmt"

// PriceUpdate carries an oracle spot price for one collateral currency,
// quoted in the debt asset.
type PriceUpdate struct {
	CurrencyID     string
	Price          int64 // Fixed-point: price scale
	PriceSequence  int64 // Monotonic per currency
	PriceTimestamp int64 // Epoch microseconds (versioned input)
}

func (p *PriceUpdate) IdempotencyKey() string {
	return fmt.Sprintf("%s:price:%d", p.CurrencyID, p.PriceSequence)
}

func (p *PriceUpdate) EventType() EventType {
	return EventTypePriceUpdate
}

func (p *PriceUpdate) Currency() *string {
	s := p.CurrencyID
	return &s
}

func (p *PriceUpdate) SourceSequence() int64 {
	return p.PriceSequence
}
