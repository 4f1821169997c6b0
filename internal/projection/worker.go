package projection

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"CDPLedger/internal/observability"
)

// ProjectionOutput mirrors the data needed by the projection worker.
// The orchestrator bridges between core.CoreOutput and this.
type ProjectionOutput struct {
	Sequence       int64
	EventType      string
	CurrencyID     *string
	JournalEntries []JournalEntry
	Positions      []PositionUpdate
	Grants         []GrantUpdate
	Timestamp      int64
}

// JournalEntry is a simplified journal row for projection consumption.
type JournalEntry struct {
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        int64
}

// PositionUpdate carries the post-event state of one loan position.
type PositionUpdate struct {
	Owner      uuid.UUID
	CurrencyID string
	Collateral int64
	Debit      int64
	State      string
	Version    int64
}

// GrantUpdate carries the post-event state of one delegation grant.
type GrantUpdate struct {
	Owner      uuid.UUID
	CurrencyID string
	Delegate   uuid.UUID
	Deposit    int64
	Revoked    bool
}

// ProjectionWorker updates read-side tables from processed events. The
// projection channel is non-blocking with drop; anything missed here can
// be rebuilt from the event log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	logger    zerolog.Logger
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		logger:    observability.NewLogger("projection"),
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				// Continue; projections are eventually consistent and
				// can be rebuilt from the event log.
				pw.logger.Warn().
					Int64("sequence", output.Sequence).
					Err(err).
					Msg("projection update failed")
			}

			pw.lastSeq = output.Sequence
		}
	}
}

// LastSequence returns the highest sequence this worker has consumed.
func (pw *ProjectionWorker) LastSequence() int64 {
	return pw.lastSeq
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, j := range output.JournalEntries {
		if err := pw.updateBalanceProjection(ctx, tx, output.Sequence, j); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}

	for _, p := range output.Positions {
		if err := pw.updatePositionProjection(ctx, tx, output.Sequence, p); err != nil {
			return fmt.Errorf("position projection: %w", err)
		}
	}

	for _, g := range output.Grants {
		if err := pw.updateGrantProjection(ctx, tx, output.Sequence, g); err != nil {
			return fmt.Errorf("grant projection: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (pw *ProjectionWorker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, seq int64, j JournalEntry) error {
	// Debit account: decrease balance
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, -$3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance - $3, last_sequence = $4
	`, j.DebitAccount, j.AssetID, j.Amount, seq); err != nil {
		return err
	}

	// Credit account: increase balance
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`, j.CreditAccount, j.AssetID, j.Amount, seq); err != nil {
		return err
	}

	return nil
}

func (pw *ProjectionWorker) updatePositionProjection(ctx context.Context, tx *sql.Tx, seq int64, p PositionUpdate) error {
	// Version guards against replays landing out of order after a rebuild.
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.positions
			(owner_id, currency_id, collateral, debit, state, version, last_sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (owner_id, currency_id) DO UPDATE SET
			collateral = $3, debit = $4, state = $5, version = $6,
			last_sequence = $7, updated_at = NOW()
		WHERE projections.positions.version < $6
	`, p.Owner, p.CurrencyID, p.Collateral, p.Debit, p.State, p.Version, seq)
	return err
}

func (pw *ProjectionWorker) updateGrantProjection(ctx context.Context, tx *sql.Tx, seq int64, g GrantUpdate) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.grants
			(owner_id, currency_id, delegate_id, deposit, revoked, last_sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (owner_id, currency_id, delegate_id) DO UPDATE SET
			deposit = $4, revoked = $5, last_sequence = $6, updated_at = NOW()
	`, g.Owner, g.CurrencyID, g.Delegate, g.Deposit, g.Revoked, seq)
	return err
}

// RebuildProjections rebuilds the balance projection from the event log.
// Positions and grants are restored separately from a snapshot replay.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.positions`,
		`TRUNCATE projections.grants`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Credits add
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			asset_id,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM cdp_log.journal
		GROUP BY credit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	// Debits subtract
	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			asset_id,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM cdp_log.journal
		GROUP BY debit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	return nil
}
