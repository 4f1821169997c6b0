package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotManager persists and loads point-in-time state snapshots so a
// warm restart replays from snapshot.sequence+1 instead of genesis.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData is the serializable form of the core's snapshot state.
// Struct-keyed maps in the core become slices here so the payload stays
// plain JSON.
type SnapshotData struct {
	Sequence  int64  `json:"sequence"`
	StateHash []byte `json:"state_hash"`
	Paused    bool   `json:"paused"`

	Balances   []BalanceSnap             `json:"balances"`
	Positions  []PositionSnapshot        `json:"positions"`
	Totals     map[string]TotalsSnap     `json:"totals"` // currency_id -> totals
	Grants     []GrantSnap               `json:"grants"`
	Prices     map[string]PriceSnap      `json:"prices"`      // currency_id -> price state
	DebitRates map[string]int64          `json:"debit_rates"` // currency_id -> rate
	RiskParams map[string]RiskParamsSnap `json:"risk_params"`

	SequenceState   map[string]int64 `json:"sequence_state"` // partition -> next expected seq
	IdempotencyKeys []string         `json:"idempotency_keys"`
	CreatedAt       time.Time        `json:"created_at"`
}

// BalanceSnap is one ledger account balance.
type BalanceSnap struct {
	Scope    uint8  `json:"scope"`
	EntityID string `json:"entity_id"` // hex-encoded 16 bytes
	SubType  uint8  `json:"sub_type"`
	AssetID  uint16 `json:"asset_id"`
	Balance  int64  `json:"balance"`
}

// PositionSnapshot is a serializable CDP position.
type PositionSnapshot struct {
	Owner      string `json:"owner"`
	CurrencyID string `json:"currency_id"`
	Collateral int64  `json:"collateral"`
	Debit      int64  `json:"debit"`
	State      int32  `json:"state"`
	Version    int64  `json:"version"`
}

// TotalsSnap carries one currency's aggregate counters.
type TotalsSnap struct {
	TotalCollateral int64 `json:"total_collateral"`
	TotalDebit      int64 `json:"total_debit"`
}

// GrantSnap is a serializable authorization grant.
type GrantSnap struct {
	Owner      string `json:"owner"`
	CurrencyID string `json:"currency_id"`
	Delegate   string `json:"delegate"`
	Deposit    int64  `json:"deposit"`
}

// PriceSnap is a serializable oracle price state.
type PriceSnap struct {
	Price         int64 `json:"price"`
	PriceSequence int64 `json:"price_sequence"`
	Timestamp     int64 `json:"timestamp"`
}

// RiskParamsSnap mirrors state.RiskParams.
type RiskParamsSnap struct {
	CurrencyID              string `json:"currency_id"`
	MaxTotalDebitValue      int64  `json:"max_total_debit_value"`
	RequiredCollateralRatio int64  `json:"required_collateral_ratio"`
	LiquidationRatio        int64  `json:"liquidation_ratio"`
	LiquidationPenalty      int64  `json:"liquidation_penalty"`
	StabilityFeeRate        int64  `json:"stability_fee_rate"`
	MinimumDebitValue       int64  `json:"minimum_debit_value"`
	EffectiveSeq            int64  `json:"effective_seq"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot. Snapshots are taken periodically and
// verified by replaying events forward before being trusted.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO cdp_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, len(data), snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot, or nil on
// a cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM cdp_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as safe to restore from.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE cdp_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadEventsFrom loads persisted envelopes for replay, ordered by
// sequence.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, currency_id, payload,
		       state_hash, prev_hash, timestamp, source_sequence
		FROM cdp_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.CurrencyID,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest persisted sequence, 0 for an
// empty log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM cdp_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
