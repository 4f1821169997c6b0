package oracle_test

import (
	"testing"

	"CDPLedger/internal/oracle"
)

func TestPriceTable_NoPriceBeforeUpdate(t *testing.T) {
	pt := oracle.NewPriceTable()

	if _, ok := pt.GetPrice("DOT"); ok {
		t.Error("price should be absent before any update")
	}
}

func TestPriceTable_StaleSequenceIgnored(t *testing.T) {
	pt := oracle.NewPriceTable()

	if !pt.UpdatePrice("DOT", 5_000_000, 10, 1000) {
		t.Fatal("first update should be accepted")
	}
	if pt.UpdatePrice("DOT", 4_000_000, 9, 1001) {
		t.Error("stale sequence should be ignored")
	}
	if pt.UpdatePrice("DOT", 4_000_000, 10, 1001) {
		t.Error("duplicate sequence should be ignored")
	}

	price, ok := pt.GetPrice("DOT")
	if !ok || price != 5_000_000 {
		t.Errorf("price: got (%d, %v), want (5000000, true)", price, ok)
	}
}

func TestPriceTable_GapAccepted(t *testing.T) {
	pt := oracle.NewPriceTable()

	pt.UpdatePrice("DOT", 5_000_000, 10, 1000)
	if !pt.UpdatePrice("DOT", 6_000_000, 15, 1002) {
		t.Error("sequence gap should still be accepted")
	}

	price, _ := pt.GetPrice("DOT")
	if price != 6_000_000 {
		t.Errorf("price: got %d, want 6000000", price)
	}
}
