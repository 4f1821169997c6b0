package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// QueryService provides read-only access to projection tables. All
// responses include as_of_sequence for freshness semantics; callers can
// compare it against the core sequence to detect projection lag.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetBalance returns a user's free and reserved balance for one asset.
func (qs *QueryService) GetBalance(
	ctx context.Context,
	userID uuid.UUID,
	asset string,
) (*BalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	freePath := fmt.Sprintf("user:%s:free:%s", userID, asset)
	free, err := qs.getProjectedBalance(ctx, freePath)
	if err != nil {
		return nil, err
	}

	reservedPath := fmt.Sprintf("user:%s:reserved:%s", userID, asset)
	reserved, err := qs.getProjectedBalance(ctx, reservedPath)
	if err != nil {
		return nil, err
	}

	return &BalanceResponse{
		UserID:          userID,
		Asset:           asset,
		FreeBalance:     free,
		ReservedBalance: reserved,
		TotalBalance:    free + reserved,
		AsOfSequence:    asOfSeq,
	}, nil
}

// GetPositions returns all open positions for a user.
func (qs *QueryService) GetPositions(
	ctx context.Context,
	owner uuid.UUID,
) ([]PositionResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT currency_id, collateral, debit, state, version
		FROM projections.positions
		WHERE owner_id = $1 AND state = 'Open'
		ORDER BY currency_id
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []PositionResponse
	for rows.Next() {
		var p PositionResponse
		p.Owner = owner
		p.AsOfSequence = asOfSeq
		if err := rows.Scan(&p.CurrencyID, &p.Collateral, &p.Debit, &p.State, &p.Version); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}

	return positions, rows.Err()
}

// GetPosition returns a single position, or nil if the user has none in
// that currency.
func (qs *QueryService) GetPosition(
	ctx context.Context,
	owner uuid.UUID,
	currencyID string,
) (*PositionResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	p := PositionResponse{Owner: owner, CurrencyID: currencyID, AsOfSequence: asOfSeq}
	err = qs.db.QueryRowContext(ctx, `
		SELECT collateral, debit, state, version
		FROM projections.positions
		WHERE owner_id = $1 AND currency_id = $2
	`, owner, currencyID).Scan(&p.Collateral, &p.Debit, &p.State, &p.Version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetGrants returns active delegation grants where the user is the owner.
func (qs *QueryService) GetGrants(
	ctx context.Context,
	owner uuid.UUID,
	includeRevoked bool,
) ([]GrantResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT currency_id, delegate_id, deposit, revoked
		FROM projections.grants
		WHERE owner_id = $1
	`
	if !includeRevoked {
		query += " AND NOT revoked"
	}
	query += " ORDER BY currency_id, delegate_id"

	rows, err := qs.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []GrantResponse
	for rows.Next() {
		var g GrantResponse
		g.Owner = owner
		g.AsOfSequence = asOfSeq
		if err := rows.Scan(&g.CurrencyID, &g.Delegate, &g.Deposit, &g.Revoked); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}

	return grants, rows.Err()
}

// GetTotals aggregates open positions in one collateral currency.
func (qs *QueryService) GetTotals(
	ctx context.Context,
	currencyID string,
) (*TotalsResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	resp := TotalsResponse{CurrencyID: currencyID, AsOfSequence: asOfSeq}
	err = qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(collateral), 0), COALESCE(SUM(debit), 0), COUNT(*)
		FROM projections.positions
		WHERE currency_id = $1 AND state = 'Open'
	`, currencyID).Scan(&resp.TotalCollateral, &resp.TotalDebit, &resp.OpenPositions)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetJournalHistory returns journal entries touching a user's accounts,
// with cursor-based pagination.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("user:%s:%%", userID)

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type, timestamp
		FROM cdp_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain and global balance invariants.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM cdp_log.events e1
		LEFT JOIN cdp_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 0 AND e1.prev_hash != COALESCE(e2.state_hash, e1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Balances across all accounts sum to zero per asset.
	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance) AS total
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var assetID uint16
		var total int64
		if err := balanceRows.Scan(&assetID, &total); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			AssetID:   assetID,
			Imbalance: total,
		})
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (qs *QueryService) getProjectedBalance(ctx context.Context, accountPath string) (int64, error) {
	var balance int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}
