package event

import "github.com/google/uuid"

// DepositConfirmed credits a user's free balance from the external
// funding boundary. Asset may be a collateral currency, the debt asset,
// or the native asset.
type DepositConfirmed struct {
	DepositID uuid.UUID
	UserID    uuid.UUID
	Asset     string
	Amount    int64 // Fixed-point
	Sequence  int64
	Timestamp int64 // Epoch microseconds, assigned by the funding gateway
}

func (d *DepositConfirmed) IdempotencyKey() string {
	return d.DepositID.String()
}

func (d *DepositConfirmed) EventType() EventType {
	return EventTypeDepositConfirmed
}

func (d *DepositConfirmed) Currency() *string {
	return nil // Global event
}

func (d *DepositConfirmed) SourceSequence() int64 {
	return d.Sequence
}

// WithdrawalConfirmed debits a user's free balance back across the
// external funding boundary.
type WithdrawalConfirmed struct {
	WithdrawalID uuid.UUID
	UserID       uuid.UUID
	Asset        string
	Amount       int64
	Sequence     int64
	Timestamp    int64 // Epoch microseconds
}

func (w *WithdrawalConfirmed) IdempotencyKey() string {
	return w.WithdrawalID.String()
}

func (w *WithdrawalConfirmed) EventType() EventType {
	return EventTypeWithdrawalConfirmed
}

func (w *WithdrawalConfirmed) Currency() *string {
	return nil
}

func (w *WithdrawalConfirmed) SourceSequence() int64 {
	return w.Sequence
}
