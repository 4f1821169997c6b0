package query

import "github.com/google/uuid"

// BalanceResponse represents user balance state for API queries.
type BalanceResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Asset  string    `json:"asset"`

	FreeBalance     int64 `json:"free_balance"`
	ReservedBalance int64 `json:"reserved_balance"`
	TotalBalance    int64 `json:"total_balance"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// PositionResponse represents a loan position for API queries.
type PositionResponse struct {
	Owner        uuid.UUID `json:"owner_id"`
	CurrencyID   string    `json:"currency_id"`
	Collateral   int64     `json:"collateral"`
	Debit        int64     `json:"debit"`
	State        string    `json:"state"`
	Version      int64     `json:"version"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// GrantResponse represents a delegation grant for API queries.
type GrantResponse struct {
	Owner        uuid.UUID `json:"owner_id"`
	CurrencyID   string    `json:"currency_id"`
	Delegate     uuid.UUID `json:"delegate_id"`
	Deposit      int64     `json:"deposit"`
	Revoked      bool      `json:"revoked"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// TotalsResponse aggregates open positions in one collateral currency.
type TotalsResponse struct {
	CurrencyID      string `json:"currency_id"`
	TotalCollateral int64  `json:"total_collateral"`
	TotalDebit      int64  `json:"total_debit"`
	OpenPositions   int64  `json:"open_positions"`
	AsOfSequence    int64  `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	JournalType   string `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset represents an asset with non-zero global balance sum.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance int64  `json:"imbalance"`
}
