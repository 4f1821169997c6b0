package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInsufficientBalance is returned when an operation needs more free or
// reserved funds than the account holds.
var ErrInsufficientBalance = errors.New("insufficient balance")

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// === User Balance Queries (total_balance = free + reserved) ===

// GetUserTotalBalance returns total balance (free + reserved)
func (bt *BalanceTracker) GetUserTotalBalance(userID uuid.UUID, assetID AssetID) int64 {
	free := bt.GetBalance(NewUserAccountKey(userID, SubTypeFree, assetID))
	reserved := bt.GetBalance(NewUserAccountKey(userID, SubTypeReserved, assetID))
	return free + reserved
}

// GetUserFreeBalance returns the spendable balance. This is the amount
// checked before collateral deposits, withdrawals, and deposit reserves.
func (bt *BalanceTracker) GetUserFreeBalance(userID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewUserAccountKey(userID, SubTypeFree, assetID))
}

// GetUserReservedBalance returns the balance locked behind authorization
// deposits.
func (bt *BalanceTracker) GetUserReservedBalance(userID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewUserAccountKey(userID, SubTypeReserved, assetID))
}

// GetCollateralPoolBalance returns the pooled collateral held for a currency.
func (bt *BalanceTracker) GetCollateralPoolBalance(assetID AssetID) int64 {
	return bt.GetBalance(CollateralPoolKey(assetID))
}

// === Invariant Checks ===

// ValidateFreeNonNegative checks free_balance >= 0
func (bt *BalanceTracker) ValidateFreeNonNegative(userID uuid.UUID, assetID AssetID) error {
	free := bt.GetUserFreeBalance(userID, assetID)
	if free < 0 {
		return fmt.Errorf("user %s has negative free balance for asset %d: %d",
			userID.String(), assetID, free)
	}
	return nil
}

// ValidateReservedNonNegative checks reserved_balance >= 0
func (bt *BalanceTracker) ValidateReservedNonNegative(userID uuid.UUID, assetID AssetID) error {
	reserved := bt.GetUserReservedBalance(userID, assetID)
	if reserved < 0 {
		return fmt.Errorf("user %s has negative reserved balance for asset %d: %d",
			userID.String(), assetID, reserved)
	}
	return nil
}

// ValidateSufficientFree checks if user has enough free balance
func (bt *BalanceTracker) ValidateSufficientFree(userID uuid.UUID, assetID AssetID, required int64) error {
	free := bt.GetUserFreeBalance(userID, assetID)
	if free < required {
		return fmt.Errorf("%w: free have=%d, need=%d", ErrInsufficientBalance, free, required)
	}
	return nil
}

// ValidateSufficientReserved checks if user has enough reserved to release
func (bt *BalanceTracker) ValidateSufficientReserved(userID uuid.UUID, assetID AssetID, required int64) error {
	reserved := bt.GetUserReservedBalance(userID, assetID)
	if reserved < required {
		return fmt.Errorf("%w: reserved have=%d, need=%d", ErrInsufficientBalance, reserved, required)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]int64 {
	totals := make(map[AssetID]int64)

	for key, balance := range bt.balances {
		totals[key.AssetID] += balance
	}

	return totals
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}

// Restore replaces all balances (snapshot recovery)
func (bt *BalanceTracker) Restore(balances map[AccountKey]int64) {
	bt.balances = make(map[AccountKey]int64, len(balances))
	for k, v := range balances {
		bt.balances[k] = v
	}
}
