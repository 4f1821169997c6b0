package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateCollateralPoolNonNegative verifies the pooled collateral for a
// currency never goes negative.
func (v *InvariantValidator) ValidateCollateralPoolNonNegative(assetID AssetID) error {
	balance := v.tracker.GetCollateralPoolBalance(assetID)
	if balance < 0 {
		assetName, _ := GetAssetName(assetID)
		return fmt.Errorf("collateral pool for %s has negative balance: %d", assetName, balance)
	}
	return nil
}

// ValidateUserFreeNonNegative checks user free balance >= 0
func (v *InvariantValidator) ValidateUserFreeNonNegative(userID uuid.UUID, assetID AssetID) error {
	key := NewUserAccountKey(userID, SubTypeFree, assetID)
	return v.tracker.ValidateNonNegative(key)
}

// ValidateGlobalBalance verifies system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for assetID, total := range totals {
		if total != 0 {
			assetName, _ := GetAssetName(assetID)
			return fmt.Errorf("global balance for %s is non-zero: %d", assetName, total)
		}
	}

	return nil
}
