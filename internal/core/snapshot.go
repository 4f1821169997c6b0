package core

import (
	"CDPLedger/internal/ledger"
	"CDPLedger/internal/oracle"
	"CDPLedger/internal/state"
)

// SnapshotState captures everything needed to rebuild the core without
// replaying the full journal. Sequence is the last applied sequence.
type SnapshotState struct {
	Sequence  int64
	StateHash [32]byte
	Paused    bool

	Balances  map[ledger.AccountKey]int64
	Positions []*state.Position
	Totals    map[string]state.CurrencyTotals
	Grants    map[state.GrantKey]int64

	Prices     map[string]*oracle.PriceState
	DebitRates map[string]int64
	RiskParams map[string]*state.RiskParams

	// Partition -> next expected source sequence
	Partitions map[string]int64

	// Recently processed composite idempotency keys, most recent first
	IdempotencyKeys []string
}

// CreateSnapshotState copies the full core state. Call from the core
// goroutine only.
func (c *DeterministicCore) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:  c.sequence - 1,
		StateHash: c.hasher.GetPrevHash(),
		Paused:    c.paused,

		Balances:  c.balanceTracker.Snapshot(),
		Positions: c.positionLedger.GetAllPositions(),
		Totals:    c.positionLedger.GetAllTotals(),
		Grants:    c.authRegistry.GetAllGrants(),

		Prices:     c.priceTable.GetAllPrices(),
		DebitRates: c.riskEngine.GetAllDebitRates(),
		RiskParams: c.riskEngine.GetAllRiskParams(),

		Partitions: c.sequenceValidator.GetAllPartitions(),

		IdempotencyKeys: c.idempotency.lru.GetAllKeys(),
	}
}

// RestoreFromSnapshot rebuilds core state before replay resumes.
// Must run before the core goroutine starts consuming events.
func (c *DeterministicCore) RestoreFromSnapshot(snap *SnapshotState) {
	c.sequence = snap.Sequence + 1
	c.paused = snap.Paused
	c.hasher.SetPrevHash(snap.StateHash)
	c.journalGen.SetSequence(c.sequence)

	c.balanceTracker.Restore(snap.Balances)

	for _, pos := range snap.Positions {
		c.positionLedger.SetPosition(pos)
	}
	for currencyID, totals := range snap.Totals {
		c.positionLedger.RestoreTotals(currencyID, totals)
	}

	for key, deposit := range snap.Grants {
		c.authRegistry.RestoreGrant(key, deposit)
	}

	for currencyID, ps := range snap.Prices {
		c.priceTable.RestorePrice(currencyID, ps)
	}
	for currencyID, rate := range snap.DebitRates {
		c.riskEngine.RestoreDebitRate(currencyID, rate)
	}
	for _, params := range snap.RiskParams {
		c.riskEngine.RestoreRiskParams(params)
	}

	for partition, seq := range snap.Partitions {
		c.sequenceValidator.SetExpectedSequence(partition, seq)
	}

	c.idempotency.lru.WarmFromKeys(snap.IdempotencyKeys)
}

// WarmLRU preloads recent idempotency keys from the durable store.
func (c *DeterministicCore) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}
