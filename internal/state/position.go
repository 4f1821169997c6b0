package state

import (
	"github.com/google/uuid"
)

// PositionState tracks the position lifecycle
type PositionState int32

const (
	PositionStateEmpty PositionState = iota
	PositionStateOpen
	PositionStateClosed
)

// Position represents one owner's loan in one collateral currency
type Position struct {
	Owner      uuid.UUID
	CurrencyID string
	Collateral int64 // Fixed-point: balance scale, never negative
	Debit      int64 // Internal debit units, never negative
	State      PositionState
	Version    int64 // Optimistic concurrency control for projections
}

func (ps PositionState) String() string {
	switch ps {
	case PositionStateEmpty:
		return "Empty"
	case PositionStateOpen:
		return "Open"
	case PositionStateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// CanTransitionTo validates state transitions
func (ps PositionState) CanTransitionTo(next PositionState) bool {
	validTransitions := map[PositionState][]PositionState{
		PositionStateEmpty: {
			PositionStateOpen,
		},
		PositionStateOpen: {
			PositionStateOpen, // Repeated adjustments
			PositionStateClosed,
		},
		PositionStateClosed: {
			PositionStateOpen, // Re-borrow after a full close
		},
	}

	allowed, ok := validTransitions[ps]
	if !ok {
		return false
	}

	for _, allowedState := range allowed {
		if next == allowedState {
			return true
		}
	}

	return false
}

// IsEmpty returns true if the position holds nothing
func (p *Position) IsEmpty() bool {
	return p.Collateral == 0 && p.Debit == 0
}

// HasDebit returns true if any debit is outstanding
func (p *Position) HasDebit() bool {
	return p.Debit > 0
}

// CanonicalBytes returns deterministic serialization for hashing
func (p *Position) CanonicalBytes() []byte {
	buf := make([]byte, 0, 64)

	// owner (16 bytes UUID binary)
	buf = append(buf, p.Owner[:]...)

	// currency_id (length-prefixed)
	buf = append(buf, byte(len(p.CurrencyID)))
	buf = append(buf, []byte(p.CurrencyID)...)

	// collateral (8 bytes LE)
	buf = appendInt64LE(buf, p.Collateral)

	// debit (8 bytes LE)
	buf = appendInt64LE(buf, p.Debit)

	// state (1 byte)
	buf = append(buf, byte(p.State))

	return buf
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}
