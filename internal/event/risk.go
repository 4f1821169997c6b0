package event

import (
	"fmt"
)

// RiskParamUpdate replaces the risk parameters for one collateral
// currency. When received, the core validates ranges and swaps the
// in-memory params; existing positions are not revalidated.
type RiskParamUpdate struct {
	CurrencyID              string
	MaxTotalDebitValue      int64 // Hard cap on aggregate debit value (quote scale)
	RequiredCollateralRatio int64 // 0 = unconstrained (ratio scale, 1_000_000 = 100%)
	LiquidationRatio        int64
	LiquidationPenalty      int64
	StabilityFeeRate        int64
	MinimumDebitValue       int64 // Dust floor for nonzero debit (quote scale)
	EffectiveSeq            int64 // Sequence at which params take effect
	Sequence                int64 // Source sequence
	Timestamp               int64 // Epoch microseconds (versioned input)
}

func (r *RiskParamUpdate) IdempotencyKey() string {
	return fmt.Sprintf("risk_param:%s:%d", r.CurrencyID, r.EffectiveSeq)
}

func (r *RiskParamUpdate) EventType() EventType {
	return EventTypeRiskParamUpdate
}

func (r *RiskParamUpdate) Currency() *string {
	s := r.CurrencyID
	return &s
}

func (r *RiskParamUpdate) SourceSequence() int64 {
	return r.Sequence
}

// DebitRateAccrual advances the debit exchange rate for one currency.
// The rate is computed upstream from the stability fee; the core only
// checks monotonicity and swaps it in.
type DebitRateAccrual struct {
	CurrencyID string
	Rate       int64 // New debit exchange rate (rate scale)
	Sequence   int64
	Timestamp  int64
}

func (d *DebitRateAccrual) IdempotencyKey() string {
	return fmt.Sprintf("debit_rate:%s:%d", d.CurrencyID, d.Sequence)
}

func (d *DebitRateAccrual) EventType() EventType {
	return EventTypeDebitRateAccrual
}

func (d *DebitRateAccrual) Currency() *string {
	s := d.CurrencyID
	return &s
}

func (d *DebitRateAccrual) SourceSequence() int64 {
	return d.Sequence
}
