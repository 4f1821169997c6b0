package dex

import (
	"fmt"

	fpmath "CDPLedger/internal/math"
)

// PairKey identifies one liquidity pool, ordered (base, quote).
type PairKey struct {
	Base  string
	Quote string
}

// Pool holds constant-product reserves at balance scale.
type Pool struct {
	BaseReserve  int64
	QuoteReserve int64
}

// QuoteRouter is an in-process SwapRouter over constant-product pools
// with a flat exchange fee. It quotes and executes multi-hop
// exact-target swaps along a validated path.
type QuoteRouter struct {
	pools   map[PairKey]*Pool
	feeRate int64 // ratio scale, e.g. 3_000 = 0.3%
}

func NewQuoteRouter(feeRate int64) *QuoteRouter {
	return &QuoteRouter{
		pools:   make(map[PairKey]*Pool),
		feeRate: feeRate,
	}
}

// AddPool registers liquidity for a pair. The key is stored as given;
// lookups try both orientations.
func (qr *QuoteRouter) AddPool(base, quote string, baseReserve, quoteReserve int64) {
	qr.pools[PairKey{Base: base, Quote: quote}] = &Pool{
		BaseReserve:  baseReserve,
		QuoteReserve: quoteReserve,
	}
}

func (qr *QuoteRouter) getReserves(from, to string) (inReserve, outReserve int64, pool *Pool, flipped bool, err error) {
	if p, ok := qr.pools[PairKey{Base: from, Quote: to}]; ok {
		return p.BaseReserve, p.QuoteReserve, p, false, nil
	}
	if p, ok := qr.pools[PairKey{Base: to, Quote: from}]; ok {
		return p.QuoteReserve, p.BaseReserve, p, true, nil
	}
	return 0, 0, nil, false, fmt.Errorf("%w: no pool for %s/%s", ErrCannotSwap, from, to)
}

// inputForExactOutput computes the constant-product input required to
// withdraw targetOut, fee charged on the input side.
func (qr *QuoteRouter) inputForExactOutput(inReserve, outReserve, targetOut int64) (int64, error) {
	if targetOut >= outReserve {
		return 0, fmt.Errorf("%w: target exceeds pool depth", ErrCannotSwap)
	}

	// amountIn = inReserve * targetOut / (outReserve - targetOut), rounded up,
	// then grossed up for the fee.
	num := fpmath.MultiplyInt128(inReserve, targetOut)
	amountIn := fpmath.DivideInt128(num, outReserve-targetOut, fpmath.RoundUp)
	if fpmath.MulDiv(amountIn, outReserve-targetOut, inReserve, fpmath.RoundDown) < targetOut {
		amountIn++
	}

	gross := fpmath.MulDiv(amountIn, fpmath.Unit, fpmath.Unit-qr.feeRate, fpmath.RoundUp)
	if gross < amountIn {
		gross = amountIn
	}
	return gross, nil
}

// SwapWithExactTarget walks the path backwards to quote the required
// input, checks maxIn, then commits reserve updates hop by hop.
func (qr *QuoteRouter) SwapWithExactTarget(path []string, targetOut int64, maxIn int64) (int64, error) {
	if len(path) < 2 {
		return 0, ErrInvalidPath
	}
	if targetOut <= 0 {
		return 0, fmt.Errorf("%w: non-positive target", ErrCannotSwap)
	}

	// Quote pass, terminal hop first.
	amounts := make([]int64, len(path))
	amounts[len(path)-1] = targetOut
	for i := len(path) - 1; i > 0; i-- {
		inReserve, outReserve, _, _, err := qr.getReserves(path[i-1], path[i])
		if err != nil {
			return 0, err
		}
		amountIn, err := qr.inputForExactOutput(inReserve, outReserve, amounts[i])
		if err != nil {
			return 0, err
		}
		amounts[i-1] = amountIn
	}

	required := amounts[0]
	if required > maxIn {
		return 0, fmt.Errorf("%w: required=%d, max=%d", ErrCannotSwap, required, maxIn)
	}

	// Commit pass.
	for i := 0; i < len(path)-1; i++ {
		_, _, pool, flipped, err := qr.getReserves(path[i], path[i+1])
		if err != nil {
			return 0, err
		}
		if flipped {
			pool.QuoteReserve += amounts[i]
			pool.BaseReserve -= amounts[i+1]
		} else {
			pool.BaseReserve += amounts[i]
			pool.QuoteReserve -= amounts[i+1]
		}
	}

	return required, nil
}
