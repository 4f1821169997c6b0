package event_test

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"CDPLedger/internal/event"
)

func TestDecodeStoredAdjustLoan(t *testing.T) {
	original := &event.AdjustLoan{
		RequestID:       uuid.New(),
		Owner:           uuid.New(),
		CurrencyID:      "DOT",
		CollateralDelta: 5_000_000,
		DebitDelta:      -200_000,
		Sequence:        42,
		Timestamp:       1_700_000_000_000_000,
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	decoded, err := event.DecodeStored("AdjustLoan", data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	got, ok := decoded.(*event.AdjustLoan)
	if !ok {
		t.Fatalf("decoded type %T, want *event.AdjustLoan", decoded)
	}
	if *got != *original {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, original)
	}
	if got.IdempotencyKey() != original.RequestID.String() {
		t.Errorf("idempotency key %q, want %q", got.IdempotencyKey(), original.RequestID.String())
	}
}

func TestDecodeStoredAllEventTypes(t *testing.T) {
	events := []event.Event{
		&event.AdjustLoan{RequestID: uuid.New(), CurrencyID: "DOT"},
		&event.TransferLoanFrom{RequestID: uuid.New(), CurrencyID: "DOT"},
		&event.CloseLoanByDex{RequestID: uuid.New(), CurrencyID: "DOT", Path: []string{"DOT", "AUSD"}},
		&event.Authorize{RequestID: uuid.New(), CurrencyID: "DOT"},
		&event.Unauthorize{RequestID: uuid.New(), CurrencyID: "DOT"},
		&event.UnauthorizeAll{RequestID: uuid.New()},
		&event.DepositConfirmed{DepositID: uuid.New(), Asset: "DOT", Amount: 1},
		&event.WithdrawalConfirmed{WithdrawalID: uuid.New(), Asset: "DOT", Amount: 1},
		&event.PriceUpdate{CurrencyID: "DOT", Price: 7_000_000},
		&event.DebitRateAccrual{CurrencyID: "DOT", Rate: 101_000},
		&event.RiskParamUpdate{CurrencyID: "DOT"},
		&event.EmergencyPause{Paused: true},
	}

	for _, evt := range events {
		typeName := evt.EventType().String()
		data, err := json.Marshal(evt)
		if err != nil {
			t.Fatalf("%s: marshal: %v", typeName, err)
		}

		decoded, err := event.DecodeStored(typeName, data)
		if err != nil {
			t.Fatalf("%s: decode: %v", typeName, err)
		}
		if decoded.EventType() != evt.EventType() {
			t.Errorf("%s: decoded event type %v, want %v", typeName, decoded.EventType(), evt.EventType())
		}
		if decoded.IdempotencyKey() != evt.IdempotencyKey() {
			t.Errorf("%s: idempotency key changed across round trip", typeName)
		}
	}
}

func TestDecodeStoredUnknownType(t *testing.T) {
	if _, err := event.DecodeStored("SettleAuction", []byte(`{}`)); err == nil {
		t.Error("expected error for unknown event type")
	}
}

func TestDecodeStoredMalformedPayload(t *testing.T) {
	if _, err := event.DecodeStored("AdjustLoan", []byte(`{"Owner": 12`)); err == nil {
		t.Error("expected error for truncated payload")
	}
}
