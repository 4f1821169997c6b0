package ledger_test

import (
	"testing"

	"github.com/google/uuid"

	"CDPLedger/internal/event"
	"CDPLedger/internal/ledger"
)

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_UserPath(t *testing.T) {
	userID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	assetID, _ := ledger.GetAssetID("DOT")
	key := ledger.NewUserAccountKey(userID, ledger.SubTypeFree, assetID)

	path := key.AccountPath()
	expected := "user:550e8400-e29b-41d4-a716-446655440000:free:DOT"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_CollateralPoolPath(t *testing.T) {
	assetID, _ := ledger.GetAssetID("DOT")
	key := ledger.CollateralPoolKey(assetID)

	path := key.AccountPath()
	if path != "system:collateral_pool:DOT" {
		t.Errorf("got %q, want %q", path, "system:collateral_pool:DOT")
	}
}

func TestAccountKey_IssuancePath(t *testing.T) {
	key := ledger.IssuanceKey()

	path := key.AccountPath()
	if path != "external:issuance:AUSD" {
		t.Errorf("got %q, want %q", path, "external:issuance:AUSD")
	}
}

func TestGetAssetID_Known(t *testing.T) {
	id, ok := ledger.GetAssetID("AUSD")
	if !ok {
		t.Fatal("AUSD should be a known asset")
	}
	if id != ledger.DebtAssetID {
		t.Errorf("AUSD asset ID: got %d, want %d", id, ledger.DebtAssetID)
	}
}

func TestGetAssetID_Unknown(t *testing.T) {
	_, ok := ledger.GetAssetID("DOGE")
	if ok {
		t.Error("DOGE should not be a known asset")
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func TestBalanceTracker_InitialBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("DOT")

	balance := bt.GetUserTotalBalance(userID, assetID)
	if balance != 0 {
		t.Errorf("initial balance should be 0, got %d", balance)
	}
}

func TestBalanceTracker_ApplyJournal(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("DOT")

	// Simulate deposit: debit user:free, credit external:deposits
	j := ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewUserAccountKey(userID, ledger.SubTypeFree, assetID),
		CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits, assetID),
		AssetID:       assetID,
		Amount:        1_000_000,
	}

	bt.ApplyJournal(j)

	free := bt.GetUserFreeBalance(userID, assetID)
	if free != 1_000_000 {
		t.Errorf("free: got %d, want 1_000_000", free)
	}
}

func TestBalanceTracker_GlobalZeroSum(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("DOT")
	batchID := uuid.New()

	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				DebitAccount:  ledger.NewUserAccountKey(userID, ledger.SubTypeFree, assetID),
				CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits, assetID),
				AssetID:       assetID,
				Amount:        500_000,
			},
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				DebitAccount:  ledger.CollateralPoolKey(assetID),
				CreditAccount: ledger.NewUserAccountKey(userID, ledger.SubTypeFree, assetID),
				AssetID:       assetID,
				Amount:        200_000,
			},
		},
	}

	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	validator := ledger.NewInvariantValidator(bt)
	if err := validator.ValidateGlobalBalance(); err != nil {
		t.Errorf("global balance should be zero-sum: %v", err)
	}

	if got := bt.GetCollateralPoolBalance(assetID); got != 200_000 {
		t.Errorf("collateral pool: got %d, want 200_000", got)
	}
	if got := bt.GetUserFreeBalance(userID, assetID); got != 300_000 {
		t.Errorf("user free: got %d, want 300_000", got)
	}
}

// ============================================================================
// Test: Batch.Validate
// ============================================================================

func TestBatch_Validate_EmptyBatch(t *testing.T) {
	batch := &ledger.Batch{BatchID: uuid.New()}
	if err := batch.Validate(); err == nil {
		t.Error("empty batch should fail validation")
	}
}

func TestBatch_Validate_NegativeAmount(t *testing.T) {
	batchID := uuid.New()
	assetID, _ := ledger.GetAssetID("DOT")
	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			DebitAccount:  ledger.CollateralPoolKey(assetID),
			CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits, assetID),
			AssetID:       assetID,
			Amount:        -100,
		}},
	}
	if err := batch.Validate(); err == nil {
		t.Error("negative amount should fail validation")
	}
}

func TestBatch_Validate_SelfTransfer(t *testing.T) {
	batchID := uuid.New()
	assetID, _ := ledger.GetAssetID("DOT")
	key := ledger.CollateralPoolKey(assetID)
	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			DebitAccount:  key,
			CreditAccount: key,
			AssetID:       assetID,
			Amount:        100,
		}},
	}
	if err := batch.Validate(); err == nil {
		t.Error("self-transfer should fail validation")
	}
}

// ============================================================================
// Test: JournalGenerator
// ============================================================================

func fundUser(bt *ledger.BalanceTracker, userID uuid.UUID, asset string, amount int64) {
	assetID, _ := ledger.GetAssetID(asset)
	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewUserAccountKey(userID, ledger.SubTypeFree, assetID),
		CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits, assetID),
		AssetID:       assetID,
		Amount:        amount,
	})
}

func TestJournalGenerator_AdjustLoan_DepositAndMint(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(1, bt)
	owner := uuid.New()
	dotID, _ := ledger.GetAssetID("DOT")

	fundUser(bt, owner, "DOT", 1_000_000_000)

	batch, err := jg.GenerateAdjustLoan(owner, uuid.New(), dotID, 1_000_000_000, 100_000_000, 1000)
	if err != nil {
		t.Fatalf("GenerateAdjustLoan failed: %v", err)
	}
	if len(batch.Journals) != 2 {
		t.Fatalf("journal count: got %d, want 2", len(batch.Journals))
	}

	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	if got := bt.GetCollateralPoolBalance(dotID); got != 1_000_000_000 {
		t.Errorf("collateral pool: got %d, want 1_000_000_000", got)
	}
	if got := bt.GetUserFreeBalance(owner, ledger.DebtAssetID); got != 100_000_000 {
		t.Errorf("minted debt asset: got %d, want 100_000_000", got)
	}
	if got := bt.GetUserFreeBalance(owner, dotID); got != 0 {
		t.Errorf("remaining free collateral: got %d, want 0", got)
	}
}

func TestJournalGenerator_AdjustLoan_InsufficientCollateral(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(1, bt)
	owner := uuid.New()
	dotID, _ := ledger.GetAssetID("DOT")

	fundUser(bt, owner, "DOT", 100)

	_, err := jg.GenerateAdjustLoan(owner, uuid.New(), dotID, 1_000, 0, 1000)
	if err == nil {
		t.Error("adjust with insufficient free collateral should fail")
	}
}

func TestJournalGenerator_AuthorizeDepositRoundTrip(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(1, bt)
	owner := uuid.New()

	fundUser(bt, owner, "ACA", 5_000_000)

	reserve, err := jg.GenerateAuthorizeDeposit(owner, uuid.New(), 1_000_000, 1000)
	if err != nil {
		t.Fatalf("GenerateAuthorizeDeposit failed: %v", err)
	}
	if err := bt.ApplyBatch(reserve); err != nil {
		t.Fatalf("ApplyBatch(reserve) failed: %v", err)
	}

	if got := bt.GetUserReservedBalance(owner, ledger.NativeAssetID); got != 1_000_000 {
		t.Errorf("reserved: got %d, want 1_000_000", got)
	}
	if got := bt.GetUserFreeBalance(owner, ledger.NativeAssetID); got != 4_000_000 {
		t.Errorf("free: got %d, want 4_000_000", got)
	}

	refund, err := jg.GenerateUnauthorizeRefund(owner, uuid.New(), 1_000_000, 1001)
	if err != nil {
		t.Fatalf("GenerateUnauthorizeRefund failed: %v", err)
	}
	if err := bt.ApplyBatch(refund); err != nil {
		t.Fatalf("ApplyBatch(refund) failed: %v", err)
	}

	if got := bt.GetUserReservedBalance(owner, ledger.NativeAssetID); got != 0 {
		t.Errorf("reserved after refund: got %d, want 0", got)
	}
	if got := bt.GetUserFreeBalance(owner, ledger.NativeAssetID); got != 5_000_000 {
		t.Errorf("free after refund: got %d, want 5_000_000", got)
	}
}

func TestJournalGenerator_CloseLoanByDex(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(1, bt)
	owner := uuid.New()
	dotID, _ := ledger.GetAssetID("DOT")

	// Seed the pool with the position's collateral.
	fundUser(bt, owner, "DOT", 1_000_000_000)
	seed, err := jg.GenerateAdjustLoan(owner, uuid.New(), dotID, 1_000_000_000, 100_000_000, 1000)
	if err != nil {
		t.Fatalf("seed adjust failed: %v", err)
	}
	if err := bt.ApplyBatch(seed); err != nil {
		t.Fatalf("seed apply failed: %v", err)
	}

	// Swap consumes 50 of collateral and repays the full 100 debit value.
	// The remaining 950 stays in the pool backing the position.
	batch, err := jg.GenerateCloseLoanByDex(owner, uuid.New(), dotID,
		50_000_000, 100_000_000, 1001)
	if err != nil {
		t.Fatalf("GenerateCloseLoanByDex failed: %v", err)
	}
	if len(batch.Journals) != 3 {
		t.Fatalf("journal count: got %d, want 3", len(batch.Journals))
	}
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	if got := bt.GetCollateralPoolBalance(dotID); got != 950_000_000 {
		t.Errorf("collateral pool after close: got %d, want 950_000_000", got)
	}
	if got := bt.GetUserFreeBalance(owner, dotID); got != 0 {
		t.Errorf("free collateral after close: got %d, want 0", got)
	}

	validator := ledger.NewInvariantValidator(bt)
	if err := validator.ValidateGlobalBalance(); err != nil {
		t.Errorf("global balance should remain zero-sum: %v", err)
	}
}

func TestJournalGenerator_Withdrawal_InsufficientFree(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(1, bt)
	userID := uuid.New()

	evt := &event.WithdrawalConfirmed{
		WithdrawalID: uuid.New(),
		UserID:       userID,
		Asset:        "AUSD",
		Amount:       1_000_000,
	}

	_, err := jg.GenerateWithdrawal(evt, ledger.DebtAssetID, 1000)
	if err == nil {
		t.Error("withdrawal with zero balance should fail")
	}
}
