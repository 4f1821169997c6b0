package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"CDPLedger/internal/event"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into
// a typed event.Event. The ingestion shell validates, parses, and converts
// raw events before sending them to the deterministic core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "PriceUpdate":
		return parsePriceUpdate(raw.Data)
	case "DebitRateAccrual":
		return parseDebitRateAccrual(raw.Data)
	case "RiskParamUpdate":
		return parseRiskParamUpdate(raw.Data)
	case "DepositConfirmed":
		return parseDepositConfirmed(raw.Data)
	case "WithdrawalConfirmed":
		return parseWithdrawalConfirmed(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.

type priceUpdateJSON struct {
	CurrencyID     string `json:"currency_id"`
	Price          int64  `json:"price"`
	PriceSequence  int64  `json:"price_sequence"`
	PriceTimestamp int64  `json:"price_timestamp_us"`
}

func parsePriceUpdate(data []byte) (*event.PriceUpdate, error) {
	var j priceUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PriceUpdate: %w", err)
	}
	if j.CurrencyID == "" {
		return nil, fmt.Errorf("parse PriceUpdate: empty currency_id")
	}
	if j.Price <= 0 {
		return nil, fmt.Errorf("parse PriceUpdate: non-positive price %d", j.Price)
	}
	return &event.PriceUpdate{
		CurrencyID:     j.CurrencyID,
		Price:          j.Price,
		PriceSequence:  j.PriceSequence,
		PriceTimestamp: j.PriceTimestamp,
	}, nil
}

type debitRateJSON struct {
	CurrencyID  string `json:"currency_id"`
	Rate        int64  `json:"rate"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseDebitRateAccrual(data []byte) (*event.DebitRateAccrual, error) {
	var j debitRateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse DebitRateAccrual: %w", err)
	}
	if j.CurrencyID == "" {
		return nil, fmt.Errorf("parse DebitRateAccrual: empty currency_id")
	}
	if j.Rate <= 0 {
		return nil, fmt.Errorf("parse DebitRateAccrual: non-positive rate %d", j.Rate)
	}
	return &event.DebitRateAccrual{
		CurrencyID: j.CurrencyID,
		Rate:       j.Rate,
		Sequence:   j.Sequence,
		Timestamp:  j.TimestampUs,
	}, nil
}

type riskParamUpdateJSON struct {
	CurrencyID              string `json:"currency_id"`
	MaxTotalDebitValue      int64  `json:"max_total_debit_value"`
	RequiredCollateralRatio int64  `json:"required_collateral_ratio"`
	LiquidationRatio        int64  `json:"liquidation_ratio"`
	LiquidationPenalty      int64  `json:"liquidation_penalty"`
	StabilityFeeRate        int64  `json:"stability_fee_rate"`
	MinimumDebitValue       int64  `json:"minimum_debit_value"`
	EffectiveSeq            int64  `json:"effective_seq"`
	Sequence                int64  `json:"sequence"`
	TimestampUs             int64  `json:"timestamp_us"`
}

func parseRiskParamUpdate(data []byte) (*event.RiskParamUpdate, error) {
	var j riskParamUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RiskParamUpdate: %w", err)
	}
	if j.CurrencyID == "" {
		return nil, fmt.Errorf("parse RiskParamUpdate: empty currency_id")
	}
	return &event.RiskParamUpdate{
		CurrencyID:              j.CurrencyID,
		MaxTotalDebitValue:      j.MaxTotalDebitValue,
		RequiredCollateralRatio: j.RequiredCollateralRatio,
		LiquidationRatio:        j.LiquidationRatio,
		LiquidationPenalty:      j.LiquidationPenalty,
		StabilityFeeRate:        j.StabilityFeeRate,
		MinimumDebitValue:       j.MinimumDebitValue,
		EffectiveSeq:            j.EffectiveSeq,
		Sequence:                j.Sequence,
		Timestamp:               j.TimestampUs,
	}, nil
}

type depositJSON struct {
	DepositID   string `json:"deposit_id"`
	UserID      string `json:"user_id"`
	Asset       string `json:"asset"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseDepositConfirmed(data []byte) (*event.DepositConfirmed, error) {
	var j depositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse DepositConfirmed: %w", err)
	}
	depositID, err := uuid.Parse(j.DepositID)
	if err != nil {
		return nil, fmt.Errorf("parse deposit_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	if j.Amount <= 0 {
		return nil, fmt.Errorf("parse DepositConfirmed: non-positive amount %d", j.Amount)
	}
	return &event.DepositConfirmed{
		DepositID: depositID,
		UserID:    userID,
		Asset:     j.Asset,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type withdrawalJSON struct {
	WithdrawalID string `json:"withdrawal_id"`
	UserID       string `json:"user_id"`
	Asset        string `json:"asset"`
	Amount       int64  `json:"amount"`
	Sequence     int64  `json:"sequence"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseWithdrawalConfirmed(data []byte) (*event.WithdrawalConfirmed, error) {
	var j withdrawalJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WithdrawalConfirmed: %w", err)
	}
	wdID, err := uuid.Parse(j.WithdrawalID)
	if err != nil {
		return nil, fmt.Errorf("parse withdrawal_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	if j.Amount <= 0 {
		return nil, fmt.Errorf("parse WithdrawalConfirmed: non-positive amount %d", j.Amount)
	}
	return &event.WithdrawalConfirmed{
		WithdrawalID: wdID,
		UserID:       userID,
		Asset:        j.Asset,
		Amount:       j.Amount,
		Sequence:     j.Sequence,
		Timestamp:    j.TimestampUs,
	}, nil
}
