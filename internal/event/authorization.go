package event

import "github.com/google/uuid"

// Authorize grants Delegate the right to call TransferLoanFrom against
// the owner's position in CurrencyID. Reserves the authorization deposit
// from the owner's native-asset free balance.
type Authorize struct {
	RequestID  uuid.UUID
	Owner      uuid.UUID
	CurrencyID string
	Delegate   uuid.UUID
	Sequence   int64
	Timestamp  int64
}

func (a *Authorize) IdempotencyKey() string {
	return a.RequestID.String()
}

func (a *Authorize) EventType() EventType {
	return EventTypeAuthorize
}

func (a *Authorize) Currency() *string {
	s := a.CurrencyID
	return &s
}

func (a *Authorize) SourceSequence() int64 {
	return a.Sequence
}

// Unauthorize revokes a single grant and refunds its deposit.
type Unauthorize struct {
	RequestID  uuid.UUID
	Owner      uuid.UUID
	CurrencyID string
	Delegate   uuid.UUID
	Sequence   int64
	Timestamp  int64
}

func (u *Unauthorize) IdempotencyKey() string {
	return u.RequestID.String()
}

func (u *Unauthorize) EventType() EventType {
	return EventTypeUnauthorize
}

func (u *Unauthorize) Currency() *string {
	s := u.CurrencyID
	return &s
}

func (u *Unauthorize) SourceSequence() int64 {
	return u.Sequence
}

// UnauthorizeAll revokes every grant the owner has issued, across all
// currencies, refunding all deposits. Succeeds even with zero grants.
type UnauthorizeAll struct {
	RequestID uuid.UUID
	Owner     uuid.UUID
	Sequence  int64
	Timestamp int64
}

func (u *UnauthorizeAll) IdempotencyKey() string {
	return u.RequestID.String()
}

func (u *UnauthorizeAll) EventType() EventType {
	return EventTypeUnauthorizeAll
}

func (u *UnauthorizeAll) Currency() *string {
	return nil // Global event
}

func (u *UnauthorizeAll) SourceSequence() int64 {
	return u.Sequence
}
