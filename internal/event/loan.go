package event

import "github.com/google/uuid"

// AdjustLoan changes a position's collateral and debit by signed deltas.
// Positive collateral delta pulls collateral from the owner's free balance;
// positive debit delta mints debt asset to the owner.
type AdjustLoan struct {
	RequestID       uuid.UUID
	Owner           uuid.UUID
	CurrencyID      string
	CollateralDelta int64 // Fixed-point balance scale, signed
	DebitDelta      int64 // Fixed-point debit units, signed
	Sequence        int64
	Timestamp       int64 // Epoch microseconds (versioned input)
}

func (a *AdjustLoan) IdempotencyKey() string {
	return a.RequestID.String()
}

func (a *AdjustLoan) EventType() EventType {
	return EventTypeAdjustLoan
}

func (a *AdjustLoan) Currency() *string {
	s := a.CurrencyID
	return &s
}

func (a *AdjustLoan) SourceSequence() int64 {
	return a.Sequence
}

// TransferLoanFrom moves the entire position at (CurrencyID, From)
// to the caller. The caller must hold an authorization grant from From.
type TransferLoanFrom struct {
	RequestID  uuid.UUID
	Caller     uuid.UUID
	From       uuid.UUID
	CurrencyID string
	Sequence   int64
	Timestamp  int64
}

func (t *TransferLoanFrom) IdempotencyKey() string {
	return t.RequestID.String()
}

func (t *TransferLoanFrom) EventType() EventType {
	return EventTypeTransferLoanFrom
}

func (t *TransferLoanFrom) Currency() *string {
	s := t.CurrencyID
	return &s
}

func (t *TransferLoanFrom) SourceSequence() int64 {
	return t.Sequence
}

// CloseLoanByDex liquidates the caller's own position by swapping
// collateral for debt asset on the DEX and burning the proceeds.
// Path is optional; empty means resolve a default path.
type CloseLoanByDex struct {
	RequestID           uuid.UUID
	Owner               uuid.UUID
	CurrencyID          string
	MaxCollateralAmount int64 // Upper bound on collateral consumed by the swap
	Path                []string
	Sequence            int64
	Timestamp           int64
}

func (c *CloseLoanByDex) IdempotencyKey() string {
	return c.RequestID.String()
}

func (c *CloseLoanByDex) EventType() EventType {
	return EventTypeCloseLoanByDex
}

func (c *CloseLoanByDex) Currency() *string {
	s := c.CurrencyID
	return &s
}

func (c *CloseLoanByDex) SourceSequence() int64 {
	return c.Sequence
}
