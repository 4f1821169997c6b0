package ledger

import (
	"fmt"

	"github.com/google/uuid"

	"CDPLedger/internal/event"
)

// JournalGenerator creates balanced journal batches from events
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker // Reference for pre-checks
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
	}
}

// SetSequence resets the generator sequence (snapshot restore).
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

// GenerateDeposit creates journals for a confirmed deposit.
// Moves funds: external:deposits → user:free
func (jg *JournalGenerator) GenerateDeposit(
	evt *event.DepositConfirmed,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  evt.DepositID.String(),
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 1),
	}

	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      evt.DepositID.String(),
		Sequence:      jg.sequence,
		DebitAccount:  NewUserAccountKey(evt.UserID, SubTypeFree, assetID),
		CreditAccount: NewExternalAccountKey(SubTypeExternalDeposits, assetID),
		AssetID:       assetID,
		Amount:        evt.Amount,
		JournalType:   JournalTypeDeposit,
		Timestamp:     timestamp,
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}

// GenerateWithdrawal creates journals for a confirmed withdrawal.
// Pre-check: the user's free balance must cover the amount.
// Moves funds: user:free → external:withdrawals
func (jg *JournalGenerator) GenerateWithdrawal(
	evt *event.WithdrawalConfirmed,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientFree(evt.UserID, assetID, evt.Amount); err != nil {
		return nil, fmt.Errorf("withdrawal pre-check failed: %w", err)
	}

	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  evt.WithdrawalID.String(),
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 1),
	}

	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      evt.WithdrawalID.String(),
		Sequence:      jg.sequence,
		DebitAccount:  NewExternalAccountKey(SubTypeExternalWithdrawals, assetID),
		CreditAccount: NewUserAccountKey(evt.UserID, SubTypeFree, assetID),
		AssetID:       assetID,
		Amount:        evt.Amount,
		JournalType:   JournalTypeWithdrawal,
		Timestamp:     timestamp,
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}

// GenerateAdjustLoan creates the balance legs for a loan adjustment.
// collateralDelta is signed collateral currency; debitValueDelta is the
// signed debt-asset amount minted to or repaid by the owner.
// Pre-checks: free collateral covers a positive collateral delta, free
// debt asset covers a repayment.
func (jg *JournalGenerator) GenerateAdjustLoan(
	owner uuid.UUID,
	requestID uuid.UUID,
	collateralAssetID AssetID,
	collateralDelta int64,
	debitValueDelta int64,
	timestamp int64,
) (*Batch, error) {
	if collateralDelta > 0 {
		if err := jg.balanceTracker.ValidateSufficientFree(owner, collateralAssetID, collateralDelta); err != nil {
			return nil, fmt.Errorf("collateral pre-check failed: %w", err)
		}
	}
	if debitValueDelta < 0 {
		if err := jg.balanceTracker.ValidateSufficientFree(owner, DebtAssetID, -debitValueDelta); err != nil {
			return nil, fmt.Errorf("repay pre-check failed: %w", err)
		}
	}

	batchID := uuid.New()
	eventRef := requestID.String()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 2),
	}

	// Leg 1: collateral movement between free balance and the pool
	if collateralDelta > 0 {
		batch.Journals = append(batch.Journals, Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  CollateralPoolKey(collateralAssetID),
			CreditAccount: NewUserAccountKey(owner, SubTypeFree, collateralAssetID),
			AssetID:       collateralAssetID,
			Amount:        collateralDelta,
			JournalType:   JournalTypeCollateralDeposit,
			Timestamp:     timestamp,
		})
	} else if collateralDelta < 0 {
		batch.Journals = append(batch.Journals, Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewUserAccountKey(owner, SubTypeFree, collateralAssetID),
			CreditAccount: CollateralPoolKey(collateralAssetID),
			AssetID:       collateralAssetID,
			Amount:        -collateralDelta,
			JournalType:   JournalTypeCollateralRefund,
			Timestamp:     timestamp,
		})
	}

	// Leg 2: debt asset mint or repay across the issuance boundary
	if debitValueDelta > 0 {
		batch.Journals = append(batch.Journals, Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewUserAccountKey(owner, SubTypeFree, DebtAssetID),
			CreditAccount: IssuanceKey(),
			AssetID:       DebtAssetID,
			Amount:        debitValueDelta,
			JournalType:   JournalTypeDebitMint,
			Timestamp:     timestamp,
		})
	} else if debitValueDelta < 0 {
		batch.Journals = append(batch.Journals, Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  IssuanceKey(),
			CreditAccount: NewUserAccountKey(owner, SubTypeFree, DebtAssetID),
			AssetID:       DebtAssetID,
			Amount:        -debitValueDelta,
			JournalType:   JournalTypeDebitRepay,
			Timestamp:     timestamp,
		})
	}

	jg.sequence++
	return batch, nil
}

// GenerateAuthorizeDeposit reserves the authorization deposit.
// Pre-check: free native balance covers the deposit.
// Moves funds: user:free → user:reserved (native asset)
func (jg *JournalGenerator) GenerateAuthorizeDeposit(
	owner uuid.UUID,
	requestID uuid.UUID,
	deposit int64,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientFree(owner, NativeAssetID, deposit); err != nil {
		return nil, fmt.Errorf("authorize pre-check failed: %w", err)
	}

	batchID := uuid.New()
	eventRef := requestID.String()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals: []Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewUserAccountKey(owner, SubTypeReserved, NativeAssetID),
			CreditAccount: NewUserAccountKey(owner, SubTypeFree, NativeAssetID),
			AssetID:       NativeAssetID,
			Amount:        deposit,
			JournalType:   JournalTypeAuthDepositReserve,
			Timestamp:     timestamp,
		}},
	}

	jg.sequence++
	return batch, nil
}

// GenerateUnauthorizeRefund releases one or more grant deposits back to
// the owner's free balance.
func (jg *JournalGenerator) GenerateUnauthorizeRefund(
	owner uuid.UUID,
	requestID uuid.UUID,
	deposit int64,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientReserved(owner, NativeAssetID, deposit); err != nil {
		return nil, fmt.Errorf("unauthorize pre-check failed: %w", err)
	}

	batchID := uuid.New()
	eventRef := requestID.String()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals: []Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewUserAccountKey(owner, SubTypeFree, NativeAssetID),
			CreditAccount: NewUserAccountKey(owner, SubTypeReserved, NativeAssetID),
			AssetID:       NativeAssetID,
			Amount:        deposit,
			JournalType:   JournalTypeAuthDepositRelease,
			Timestamp:     timestamp,
		}},
	}

	jg.sequence++
	return batch, nil
}

// GenerateCloseLoanByDex creates the legs for a DEX-assisted close:
// collateral consumed by the swap leaves through the DEX boundary, the
// debt asset bought comes back through it, is parked in the treasury and
// burned against issuance. Unconsumed collateral stays in the pool
// backing the position.
func (jg *JournalGenerator) GenerateCloseLoanByDex(
	owner uuid.UUID,
	requestID uuid.UUID,
	collateralAssetID AssetID,
	swapConsumed int64,
	debitValueRepaid int64,
	timestamp int64,
) (*Batch, error) {
	batchID := uuid.New()
	eventRef := requestID.String()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 3),
	}

	if swapConsumed > 0 {
		batch.Journals = append(batch.Journals, Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  DexBoundaryKey(collateralAssetID),
			CreditAccount: CollateralPoolKey(collateralAssetID),
			AssetID:       collateralAssetID,
			Amount:        swapConsumed,
			JournalType:   JournalTypeDexSwapOut,
			Timestamp:     timestamp,
		})
	}

	if debitValueRepaid > 0 {
		batch.Journals = append(batch.Journals, Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewSystemAccountKey("cdp_treasury", SubTypeSystemTreasury, DebtAssetID),
			CreditAccount: DexBoundaryKey(DebtAssetID),
			AssetID:       DebtAssetID,
			Amount:        debitValueRepaid,
			JournalType:   JournalTypeDexSwapIn,
			Timestamp:     timestamp,
		})

		batch.Journals = append(batch.Journals, Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  IssuanceKey(),
			CreditAccount: NewSystemAccountKey("cdp_treasury", SubTypeSystemTreasury, DebtAssetID),
			AssetID:       DebtAssetID,
			Amount:        debitValueRepaid,
			JournalType:   JournalTypeDebitRepay,
			Timestamp:     timestamp,
		})
	}

	jg.sequence++
	return batch, nil
}
