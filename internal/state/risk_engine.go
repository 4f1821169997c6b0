package state

import (
	"fmt"

	fpmath "CDPLedger/internal/math"
)

// RiskParams defines the debt limits for one collateral currency
type RiskParams struct {
	CurrencyID              string
	MaxTotalDebitValue      int64 // Hard cap on aggregate debit value (quote scale)
	RequiredCollateralRatio int64 // 0 = unconstrained (scale 1_000_000 = 100%)
	LiquidationRatio        int64 // Threshold for external liquidation (not a gate here)
	LiquidationPenalty      int64
	StabilityFeeRate        int64 // Per-accrual-interval rate, informational
	MinimumDebitValue       int64 // Dust floor for nonzero debit (quote scale)
	EffectiveSeq            int64 // Sequence at which params take effect
}

// DefaultDebitExchangeRate converts debit units to debt-asset value when
// no accrual has happened yet: 1 debit unit = 0.1 debt asset.
const DefaultDebitExchangeRate int64 = 100_000

var (
	// Default risk params (MVP)
	DefaultRiskParams = map[string]*RiskParams{
		"DOT": {
			CurrencyID:              "DOT",
			MaxTotalDebitValue:      10_000_000 * fpmath.Unit,
			RequiredCollateralRatio: 1_500_000, // 150%
			LiquidationRatio:        1_100_000, // 110%
			LiquidationPenalty:      50_000,    // 5%
			StabilityFeeRate:        0,
			MinimumDebitValue:       1 * fpmath.Unit,
			EffectiveSeq:            0,
		},
		"LDOT": {
			CurrencyID:              "LDOT",
			MaxTotalDebitValue:      10_000_000 * fpmath.Unit,
			RequiredCollateralRatio: 1_500_000,
			LiquidationRatio:        1_100_000,
			LiquidationPenalty:      50_000,
			StabilityFeeRate:        0,
			MinimumDebitValue:       1 * fpmath.Unit,
			EffectiveSeq:            0,
		},
		"RENBTC": {
			CurrencyID:              "RENBTC",
			MaxTotalDebitValue:      10_000_000 * fpmath.Unit,
			RequiredCollateralRatio: 1_500_000,
			LiquidationRatio:        1_100_000,
			LiquidationPenalty:      50_000,
			StabilityFeeRate:        0,
			MinimumDebitValue:       1 * fpmath.Unit,
			EffectiveSeq:            0,
		},
	}
)

// RiskEngine holds risk parameters and debit exchange rates per currency
type RiskEngine struct {
	params     map[string]*RiskParams
	debitRates map[string]int64
}

func NewRiskEngine() *RiskEngine {
	params := make(map[string]*RiskParams)
	for k, v := range DefaultRiskParams {
		params[k] = v
	}

	return &RiskEngine{
		params:     params,
		debitRates: make(map[string]int64),
	}
}

func (re *RiskEngine) GetRiskParams(currencyID string) (*RiskParams, bool) {
	params, ok := re.params[currencyID]
	return params, ok
}

// GetDebitExchangeRate returns the current rate, falling back to the
// global default when no accrual has been recorded.
func (re *RiskEngine) GetDebitExchangeRate(currencyID string) int64 {
	if rate, ok := re.debitRates[currencyID]; ok {
		return rate
	}
	return DefaultDebitExchangeRate
}

// AccrueDebitRate advances the rate for a currency. Rates only grow:
// the upstream stability fee compounds on the prior rate.
func (re *RiskEngine) AccrueDebitRate(currencyID string, rate int64) error {
	current := re.GetDebitExchangeRate(currencyID)
	if rate < current {
		return fmt.Errorf("%w: current=%d, proposed=%d", ErrNonMonotonicRate, current, rate)
	}
	re.debitRates[currencyID] = rate
	return nil
}

// DebitValue converts debit units to debt-asset value at the current rate.
func (re *RiskEngine) DebitValue(currencyID string, debit int64) int64 {
	return fpmath.MulRate(debit, re.GetDebitExchangeRate(currencyID))
}

// CollateralRatio computes collateral_value / debit_value at ratio scale.
// Zero debit means infinitely collateralized; callers must special-case it.
func CollateralRatio(collateral, price, debitValue int64) int64 {
	collateralValue := fpmath.MulPrice(collateral, price)
	return fpmath.Ratio(collateralValue, debitValue)
}

// ValidatePosition checks a candidate position against the currency's
// risk parameters using a fresh price. Positions with zero debit always
// pass: collateral-only positions carry no liability.
func (re *RiskEngine) ValidatePosition(currencyID string, price, collateral, debit int64) error {
	params, ok := re.params[currencyID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidCurrency, currencyID)
	}

	if debit == 0 {
		return nil
	}

	debitValue := re.DebitValue(currencyID, debit)

	if debitValue < params.MinimumDebitValue {
		return fmt.Errorf("%w: value=%d, minimum=%d",
			ErrRemainDebitValueTooSmall, debitValue, params.MinimumDebitValue)
	}

	if params.RequiredCollateralRatio > 0 {
		ratio := CollateralRatio(collateral, price, debitValue)
		// Exactly at the required ratio passes.
		if ratio < params.RequiredCollateralRatio {
			return fmt.Errorf("%w: ratio=%d, required=%d",
				ErrBelowRequiredCollateralRatio, ratio, params.RequiredCollateralRatio)
		}
	}

	return nil
}

// ValidateDebitCap checks the candidate aggregate debit for a currency
// against its hard cap.
func (re *RiskEngine) ValidateDebitCap(currencyID string, totalDebit int64) error {
	params, ok := re.params[currencyID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidCurrency, currencyID)
	}

	totalValue := re.DebitValue(currencyID, totalDebit)
	if totalValue > params.MaxTotalDebitValue {
		return fmt.Errorf("%w: total=%d, cap=%d",
			ErrExceedDebitValueHardCap, totalValue, params.MaxTotalDebitValue)
	}

	return nil
}

// ValidateRiskParams checks that risk parameters are within valid ranges:
// ratios at or above 100% where set, liquidation at or below required,
// non-negative penalty, fee, cap and dust floor.
func ValidateRiskParams(params *RiskParams) error {
	if params.MaxTotalDebitValue < 0 {
		return fmt.Errorf("max_total_debit_value must be >= 0, got %d", params.MaxTotalDebitValue)
	}
	if params.RequiredCollateralRatio != 0 && params.RequiredCollateralRatio < fpmath.Unit {
		return fmt.Errorf("required_collateral_ratio must be >= 1_000_000 or 0, got %d", params.RequiredCollateralRatio)
	}
	if params.LiquidationRatio != 0 && params.LiquidationRatio < fpmath.Unit {
		return fmt.Errorf("liquidation_ratio must be >= 1_000_000 or 0, got %d", params.LiquidationRatio)
	}
	if params.RequiredCollateralRatio != 0 && params.LiquidationRatio > params.RequiredCollateralRatio {
		return fmt.Errorf("liquidation_ratio (%d) must be <= required_collateral_ratio (%d)",
			params.LiquidationRatio, params.RequiredCollateralRatio)
	}
	if params.LiquidationPenalty < 0 {
		return fmt.Errorf("liquidation_penalty must be >= 0, got %d", params.LiquidationPenalty)
	}
	if params.StabilityFeeRate < 0 {
		return fmt.Errorf("stability_fee_rate must be >= 0, got %d", params.StabilityFeeRate)
	}
	if params.MinimumDebitValue < 0 {
		return fmt.Errorf("minimum_debit_value must be >= 0, got %d", params.MinimumDebitValue)
	}
	return nil
}

func (re *RiskEngine) UpdateRiskParams(params *RiskParams) error {
	if err := ValidateRiskParams(params); err != nil {
		return fmt.Errorf("invalid risk params for %s: %w", params.CurrencyID, err)
	}
	re.params[params.CurrencyID] = params
	return nil
}

// GetAllDebitRates returns all accrued rates (for snapshot creation)
func (re *RiskEngine) GetAllDebitRates() map[string]int64 {
	result := make(map[string]int64, len(re.debitRates))
	for k, v := range re.debitRates {
		result[k] = v
	}
	return result
}

// RestoreDebitRate directly sets a rate (used for snapshot restore)
func (re *RiskEngine) RestoreDebitRate(currencyID string, rate int64) {
	re.debitRates[currencyID] = rate
}

// RestoreRiskParams directly sets params (used for snapshot restore)
func (re *RiskEngine) RestoreRiskParams(params *RiskParams) {
	re.params[params.CurrencyID] = params
}

// GetAllRiskParams returns all params (for snapshot creation)
func (re *RiskEngine) GetAllRiskParams() map[string]*RiskParams {
	result := make(map[string]*RiskParams, len(re.params))
	for k, v := range re.params {
		result[k] = v
	}
	return result
}
