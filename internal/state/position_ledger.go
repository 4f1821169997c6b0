package state

import (
	"fmt"

	"github.com/google/uuid"

	fpmath "CDPLedger/internal/math"
)

// PositionLedger manages loan positions and per-currency totals
type PositionLedger struct {
	positions map[PositionKey]*Position
	totals    map[string]*CurrencyTotals
}

type PositionKey struct {
	CurrencyID string
	Owner      uuid.UUID
}

// CurrencyTotals aggregates all open positions in one currency
type CurrencyTotals struct {
	TotalCollateral int64
	TotalDebit      int64
}

func NewPositionLedger() *PositionLedger {
	return &PositionLedger{
		positions: make(map[PositionKey]*Position),
		totals:    make(map[string]*CurrencyTotals),
	}
}

// GetPosition returns existing position or nil
func (pl *PositionLedger) GetPosition(currencyID string, owner uuid.UUID) *Position {
	key := PositionKey{CurrencyID: currencyID, Owner: owner}
	return pl.positions[key]
}

// GetOrCreatePosition returns existing or creates new empty position
func (pl *PositionLedger) GetOrCreatePosition(currencyID string, owner uuid.UUID) *Position {
	key := PositionKey{CurrencyID: currencyID, Owner: owner}
	pos := pl.positions[key]

	if pos == nil {
		pos = &Position{
			Owner:      owner,
			CurrencyID: currencyID,
			Collateral: 0,
			Debit:      0,
			State:      PositionStateEmpty,
			Version:    0,
		}
		pl.positions[key] = pos
	}

	return pos
}

// GetTotals returns the aggregate collateral and debit for a currency
func (pl *PositionLedger) GetTotals(currencyID string) CurrencyTotals {
	if t := pl.totals[currencyID]; t != nil {
		return *t
	}
	return CurrencyTotals{}
}

// PreviewAdjust computes the candidate collateral and debit after applying
// signed deltas, without mutating anything. Underflow of either side fails.
func (pl *PositionLedger) PreviewAdjust(
	currencyID string,
	owner uuid.UUID,
	collateralDelta int64,
	debitDelta int64,
) (newCollateral int64, newDebit int64, err error) {
	var collateral, debit int64
	if pos := pl.GetPosition(currencyID, owner); pos != nil {
		collateral = pos.Collateral
		debit = pos.Debit
	}

	newCollateral, err = fpmath.ApplyDelta(collateral, collateralDelta)
	if err != nil {
		return 0, 0, fmt.Errorf("collateral delta: %w", err)
	}

	newDebit, err = fpmath.ApplyDelta(debit, debitDelta)
	if err != nil {
		return 0, 0, fmt.Errorf("debit delta: %w", err)
	}

	return newCollateral, newDebit, nil
}

// CommitAdjust applies previously validated deltas to the position and the
// currency totals. Call only after PreviewAdjust and risk validation passed.
func (pl *PositionLedger) CommitAdjust(
	currencyID string,
	owner uuid.UUID,
	collateralDelta int64,
	debitDelta int64,
) (*Position, error) {
	pos := pl.GetOrCreatePosition(currencyID, owner)

	newCollateral, err := fpmath.ApplyDelta(pos.Collateral, collateralDelta)
	if err != nil {
		return nil, err
	}
	newDebit, err := fpmath.ApplyDelta(pos.Debit, debitDelta)
	if err != nil {
		return nil, err
	}

	totals := pl.totals[currencyID]
	if totals == nil {
		totals = &CurrencyTotals{}
		pl.totals[currencyID] = totals
	}
	totals.TotalCollateral, err = fpmath.ApplyDelta(totals.TotalCollateral, collateralDelta)
	if err != nil {
		return nil, fmt.Errorf("currency total collateral: %w", err)
	}
	totals.TotalDebit, err = fpmath.ApplyDelta(totals.TotalDebit, debitDelta)
	if err != nil {
		return nil, fmt.Errorf("currency total debit: %w", err)
	}

	pos.Collateral = newCollateral
	pos.Debit = newDebit

	next := PositionStateOpen
	if pos.IsEmpty() {
		next = PositionStateClosed
	}
	if pos.State != next && pos.State.CanTransitionTo(next) {
		pos.State = next
	}
	pos.Version++

	if pos.IsEmpty() {
		// Closed positions are pruned; re-borrowing recreates them.
		delete(pl.positions, PositionKey{CurrencyID: currencyID, Owner: owner})
	}

	return pos, nil
}

// TransferPosition moves the entire position at (currencyID, from) onto
// the position of (currencyID, to). Both positions must survive their
// respective checked arithmetic.
func (pl *PositionLedger) TransferPosition(
	currencyID string,
	from uuid.UUID,
	to uuid.UUID,
) (collateral int64, debit int64, err error) {
	src := pl.GetPosition(currencyID, from)
	if src == nil || src.IsEmpty() {
		return 0, 0, ErrNoPosition
	}

	collateral = src.Collateral
	debit = src.Debit

	// Self-transfer nets to a no-op; src and dst would alias the same
	// position and the zeroing below would destroy it.
	if from == to {
		return collateral, debit, nil
	}

	// Totals are unchanged: the transfer stays inside one currency.
	dst := pl.GetOrCreatePosition(currencyID, to)
	newCollateral, err := fpmath.ApplyDelta(dst.Collateral, collateral)
	if err != nil {
		return 0, 0, err
	}
	newDebit, err := fpmath.ApplyDelta(dst.Debit, debit)
	if err != nil {
		return 0, 0, err
	}

	dst.Collateral = newCollateral
	dst.Debit = newDebit
	if dst.State != PositionStateOpen && dst.State.CanTransitionTo(PositionStateOpen) {
		dst.State = PositionStateOpen
	}
	dst.Version++

	src.Collateral = 0
	src.Debit = 0
	if src.State.CanTransitionTo(PositionStateClosed) {
		src.State = PositionStateClosed
	}
	src.Version++
	delete(pl.positions, PositionKey{CurrencyID: currencyID, Owner: from})

	return collateral, debit, nil
}

// SetPosition directly sets a position (used for snapshot restore)
func (pl *PositionLedger) SetPosition(pos *Position) {
	key := PositionKey{CurrencyID: pos.CurrencyID, Owner: pos.Owner}
	pl.positions[key] = pos
}

// RestoreTotals directly sets currency totals (used for snapshot restore)
func (pl *PositionLedger) RestoreTotals(currencyID string, totals CurrencyTotals) {
	t := totals
	pl.totals[currencyID] = &t
}

// GetAllTotals returns all currency totals (for snapshot creation)
func (pl *PositionLedger) GetAllTotals() map[string]CurrencyTotals {
	result := make(map[string]CurrencyTotals, len(pl.totals))
	for k, v := range pl.totals {
		result[k] = *v
	}
	return result
}

// GetAllPositions returns all positions (for iteration)
func (pl *PositionLedger) GetAllPositions() []*Position {
	result := make([]*Position, 0, len(pl.positions))
	for _, pos := range pl.positions {
		result = append(result, pos)
	}
	return result
}

// GetOwnerPositions returns all positions for an owner
func (pl *PositionLedger) GetOwnerPositions(owner uuid.UUID) []*Position {
	result := make([]*Position, 0)
	for key, pos := range pl.positions {
		if key.Owner == owner {
			result = append(result, pos)
		}
	}
	return result
}
