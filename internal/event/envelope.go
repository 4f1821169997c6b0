package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeAdjustLoan
	EventTypeTransferLoanFrom
	EventTypeCloseLoanByDex
	EventTypeAuthorize
	EventTypeUnauthorize
	EventTypeUnauthorizeAll
	EventTypeDepositConfirmed
	EventTypeWithdrawalConfirmed
	EventTypePriceUpdate
	EventTypeDebitRateAccrual
	EventTypeRiskParamUpdate
	EventTypeEmergencyPause
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Collateral currency context (nullable for global events)
	Currency *string

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Currency returns the collateral currency context (nil for global events)
	Currency() *string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeAdjustLoan:
		return "AdjustLoan"
	case EventTypeTransferLoanFrom:
		return "TransferLoanFrom"
	case EventTypeCloseLoanByDex:
		return "CloseLoanByDex"
	case EventTypeAuthorize:
		return "Authorize"
	case EventTypeUnauthorize:
		return "Unauthorize"
	case EventTypeUnauthorizeAll:
		return "UnauthorizeAll"
	case EventTypeDepositConfirmed:
		return "DepositConfirmed"
	case EventTypeWithdrawalConfirmed:
		return "WithdrawalConfirmed"
	case EventTypePriceUpdate:
		return "PriceUpdate"
	case EventTypeDebitRateAccrual:
		return "DebitRateAccrual"
	case EventTypeRiskParamUpdate:
		return "RiskParamUpdate"
	case EventTypeEmergencyPause:
		return "EmergencyPause"
	default:
		return "Unknown"
	}
}
