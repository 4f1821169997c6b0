package dex

import (
	"errors"

	fpmath "CDPLedger/internal/math"
)

// TradingPathLimit caps swap path length, matching the router's hop limit.
const TradingPathLimit = 4

// DefaultMaxSlippage bounds how far a swap may deviate from the oracle
// price: 15% at ratio scale.
const DefaultMaxSlippage int64 = 150_000

var (
	ErrInvalidPath        = errors.New("invalid swap path")
	ErrNoAvailableDexPath = errors.New("no available swap path")
	ErrCannotSwap         = errors.New("swap not executable within limits")
)

// SwapRouter executes a swap that buys an exact amount of the terminal
// asset spending no more than maxIn of the first asset. Returns the
// amount actually spent.
type SwapRouter interface {
	SwapWithExactTarget(path []string, targetOut int64, maxIn int64) (amountIn int64, err error)
}

// PathResolver validates explicit swap paths and resolves default ones
// from an ordered list of partial paths ending at the debt asset.
type PathResolver struct {
	debtAsset    string
	partialPaths [][]string
}

// NewPathResolver builds a resolver. partialPaths entries omit the
// leading collateral currency; the shipped default is a single direct
// hop to the debt asset.
func NewPathResolver(debtAsset string, partialPaths [][]string) *PathResolver {
	if len(partialPaths) == 0 {
		partialPaths = [][]string{{debtAsset}}
	}
	return &PathResolver{
		debtAsset:    debtAsset,
		partialPaths: partialPaths,
	}
}

// ValidatePath checks an explicit path: it must start at the collateral
// currency, end at the debt asset, stay within the hop limit, and not
// visit any asset twice.
func (pr *PathResolver) ValidatePath(path []string, currencyID string) error {
	if len(path) < 2 || len(path) > TradingPathLimit {
		return ErrInvalidPath
	}
	if path[0] != currencyID {
		return ErrInvalidPath
	}
	if path[len(path)-1] != pr.debtAsset {
		return ErrInvalidPath
	}

	seen := make(map[string]struct{}, len(path))
	for _, asset := range path {
		if _, dup := seen[asset]; dup {
			return ErrInvalidPath
		}
		seen[asset] = struct{}{}
	}

	return nil
}

// ResolveDefaultPath prepends the collateral currency to the first
// partial path that yields a valid route.
func (pr *PathResolver) ResolveDefaultPath(currencyID string) ([]string, error) {
	for _, partial := range pr.partialPaths {
		path := make([]string, 0, len(partial)+1)
		path = append(path, currencyID)
		path = append(path, partial...)

		if pr.ValidatePath(path, currencyID) == nil {
			return path, nil
		}
	}
	return nil, ErrNoAvailableDexPath
}

// CheckSlippage rejects swaps whose effective price deviates from the
// oracle spot by more than maxSlippage. amountIn is collateral spent,
// targetOut the debt asset bought, oraclePrice the spot for the
// collateral currency.
func CheckSlippage(amountIn, targetOut, oraclePrice, maxSlippage int64) error {
	if amountIn <= 0 || targetOut <= 0 || oraclePrice <= 0 {
		return ErrCannotSwap
	}

	oracleValue := fpmath.MulPrice(amountIn, oraclePrice)
	allowed := fpmath.MulRate(targetOut, fpmath.Unit+maxSlippage)
	if oracleValue > allowed {
		return ErrCannotSwap
	}
	return nil
}

// MaxInputForSlippage returns the largest amountIn that CheckSlippage
// accepts for the given target and oracle spot. Folding the bound into
// the router's maxIn keeps a rejected swap from executing at all.
func MaxInputForSlippage(targetOut, oraclePrice, maxSlippage int64) int64 {
	if oraclePrice <= 0 {
		return 0
	}
	allowed := fpmath.MulRate(targetOut, fpmath.Unit+maxSlippage)
	return fpmath.MulDiv(allowed, fpmath.Unit, oraclePrice, fpmath.RoundDown)
}
