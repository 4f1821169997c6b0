package state

import "errors"

// Typed rejection reasons surfaced to callers. The core wraps these with
// command context; the HTTP layer maps them to stable error codes.
var (
	ErrNoPosition                   = errors.New("no position for currency and owner")
	ErrNoDebit                      = errors.New("position has no debit")
	ErrBelowRequiredCollateralRatio = errors.New("below required collateral ratio")
	ErrRemainDebitValueTooSmall     = errors.New("remaining debit value below minimum")
	ErrExceedDebitValueHardCap      = errors.New("total debit value exceeds hard cap")
	ErrNoPermission                 = errors.New("caller lacks permission for position")
	ErrNotAuthorized                = errors.New("authorization grant does not exist")
	ErrSystemPaused                 = errors.New("operations are paused")
	ErrInvalidCurrency              = errors.New("unknown collateral currency")
	ErrNonMonotonicRate             = errors.New("debit exchange rate must not decrease")
)
