package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"CDPLedger/internal/event"
	"CDPLedger/internal/ingestion"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParsePriceUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"currency_id":        "DOT",
		"price":              int64(2_500_000),
		"price_sequence":     int64(42),
		"price_timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "PriceUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	pu, ok := evt.(*event.PriceUpdate)
	if !ok {
		t.Fatalf("expected *event.PriceUpdate, got %T", evt)
	}

	if pu.CurrencyID != "DOT" {
		t.Errorf("currency: got %s, want DOT", pu.CurrencyID)
	}
	if pu.Price != 2_500_000 {
		t.Errorf("price: got %d, want 2_500_000", pu.Price)
	}
	if pu.PriceSequence != 42 {
		t.Errorf("price_sequence: got %d, want 42", pu.PriceSequence)
	}
	if pu.PriceTimestamp != 1700000000000000 {
		t.Errorf("price_timestamp: got %d", pu.PriceTimestamp)
	}
}

func TestParsePriceUpdate_RejectsNonPositivePrice(t *testing.T) {
	payload := map[string]interface{}{
		"currency_id":        "DOT",
		"price":              int64(0),
		"price_sequence":     int64(1),
		"price_timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "PriceUpdate"); err == nil {
		t.Fatal("expected error for zero price")
	}
}

func TestParseDebitRateAccrual(t *testing.T) {
	payload := map[string]interface{}{
		"currency_id":  "LDOT",
		"rate":         int64(105_000),
		"sequence":     int64(7),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "DebitRateAccrual")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	dr, ok := evt.(*event.DebitRateAccrual)
	if !ok {
		t.Fatalf("expected *event.DebitRateAccrual, got %T", evt)
	}

	if dr.CurrencyID != "LDOT" {
		t.Errorf("currency: got %s, want LDOT", dr.CurrencyID)
	}
	if dr.Rate != 105_000 {
		t.Errorf("rate: got %d, want 105_000", dr.Rate)
	}
	if dr.Sequence != 7 {
		t.Errorf("sequence: got %d, want 7", dr.Sequence)
	}
}

func TestParseRiskParamUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"currency_id":               "DOT",
		"max_total_debit_value":     int64(10_000_000_000_000),
		"required_collateral_ratio": int64(1_500_000),
		"liquidation_ratio":         int64(1_100_000),
		"liquidation_penalty":       int64(130_000),
		"stability_fee_rate":        int64(30_000),
		"minimum_debit_value":       int64(1_000_000),
		"effective_seq":             int64(100),
		"sequence":                  int64(3),
		"timestamp_us":              int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "RiskParamUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	rp, ok := evt.(*event.RiskParamUpdate)
	if !ok {
		t.Fatalf("expected *event.RiskParamUpdate, got %T", evt)
	}

	if rp.CurrencyID != "DOT" {
		t.Errorf("currency: got %s, want DOT", rp.CurrencyID)
	}
	if rp.RequiredCollateralRatio != 1_500_000 {
		t.Errorf("required ratio: got %d, want 1_500_000", rp.RequiredCollateralRatio)
	}
	if rp.MaxTotalDebitValue != 10_000_000_000_000 {
		t.Errorf("debit cap: got %d", rp.MaxTotalDebitValue)
	}
	if rp.EffectiveSeq != 100 {
		t.Errorf("effective_seq: got %d, want 100", rp.EffectiveSeq)
	}
}

func TestParseDepositConfirmed(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id":   "550e8400-e29b-41d4-a716-446655440000",
		"user_id":      "660e8400-e29b-41d4-a716-446655440001",
		"asset":        "DOT",
		"amount":       int64(5_000_000),
		"sequence":     int64(12),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "DepositConfirmed")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	dc, ok := evt.(*event.DepositConfirmed)
	if !ok {
		t.Fatalf("expected *event.DepositConfirmed, got %T", evt)
	}

	if dc.Asset != "DOT" {
		t.Errorf("asset: got %s, want DOT", dc.Asset)
	}
	if dc.Amount != 5_000_000 {
		t.Errorf("amount: got %d, want 5_000_000", dc.Amount)
	}
	if dc.Timestamp != 1700000000000000 {
		t.Errorf("timestamp: got %d", dc.Timestamp)
	}
}

func TestParseDepositConfirmed_RejectsBadUUID(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id":   "not-a-uuid",
		"user_id":      "660e8400-e29b-41d4-a716-446655440001",
		"asset":        "DOT",
		"amount":       int64(5_000_000),
		"sequence":     int64(12),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "DepositConfirmed"); err == nil {
		t.Fatal("expected error for malformed deposit_id")
	}
}

func TestParseWithdrawalConfirmed(t *testing.T) {
	payload := map[string]interface{}{
		"withdrawal_id": "770e8400-e29b-41d4-a716-446655440002",
		"user_id":       "660e8400-e29b-41d4-a716-446655440001",
		"asset":         "AUSD",
		"amount":        int64(2_000_000),
		"sequence":      int64(9),
		"timestamp_us":  int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "WithdrawalConfirmed")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	wc, ok := evt.(*event.WithdrawalConfirmed)
	if !ok {
		t.Fatalf("expected *event.WithdrawalConfirmed, got %T", evt)
	}

	if wc.Asset != "AUSD" {
		t.Errorf("asset: got %s, want AUSD", wc.Asset)
	}
	if wc.Amount != 2_000_000 {
		t.Errorf("amount: got %d, want 2_000_000", wc.Amount)
	}
}

func TestParseUnknownEventType(t *testing.T) {
	raw := rawFromJSON(t, map[string]interface{}{})
	if _, err := ingestion.ParseRawEvent(raw, "Bogus"); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}
