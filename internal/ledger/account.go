package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeFree AccountSubType = iota
	SubTypeReserved

	// System sub-types
	SubTypeSystemCollateralPool
	SubTypeSystemTreasury
	SubTypeSystemFees

	// External sub-types
	SubTypeExternalDeposits
	SubTypeExternalWithdrawals
	SubTypeExternalIssuance
	SubTypeExternalDex
)

// AssetID maps asset strings to numeric IDs for performance
type AssetID uint16

// DebtAssetID is the stablecoin every debit is denominated in.
// NativeAssetID backs authorization deposits.
const (
	DebtAssetID   AssetID = 1
	NativeAssetID AssetID = 2
)

var (
	assetToID = map[string]AssetID{
		"AUSD":   DebtAssetID,
		"ACA":    NativeAssetID,
		"DOT":    3,
		"LDOT":   4,
		"RENBTC": 5,
	}
	idToAsset = map[AssetID]string{
		DebtAssetID:   "AUSD",
		NativeAssetID: "ACA",
		3:             "DOT",
		4:             "LDOT",
		5:             "RENBTC",
	}
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// AccountKey is the in-memory key for balance tracking (21 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // UUID for users, hash for system accounts
	SubType  AccountSubType
	AssetID  AssetID
}

// NewUserAccountKey creates a key for user accounts
func NewUserAccountKey(userID uuid.UUID, subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: userID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewSystemAccountKey creates a key for system accounts
func NewSystemAccountKey(name string, subType AccountSubType, assetID AssetID) AccountKey {
	var entityID [16]byte
	// Hash the name into 16 bytes
	copy(entityID[:], []byte(name))
	return AccountKey{
		Scope:    AccountScopeSystem,
		EntityID: entityID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

// CollateralPoolKey is the system account holding deposited collateral
// for one currency.
func CollateralPoolKey(assetID AssetID) AccountKey {
	return NewSystemAccountKey("cdp_treasury", SubTypeSystemCollateralPool, assetID)
}

// IssuanceKey is the external boundary the debt asset is minted from
// and burned to.
func IssuanceKey() AccountKey {
	return NewExternalAccountKey(SubTypeExternalIssuance, DebtAssetID)
}

// DexBoundaryKey is the external boundary collateral leaves through and
// debt asset arrives from on a swap.
func DexBoundaryKey(assetID AssetID) AccountKey {
	return NewExternalAccountKey(SubTypeExternalDex, assetID)
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case AccountScopeUser:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("user:%s:%s:%s", uid.String(), k.subTypeName(), assetName)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.subTypeName(), assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeFree:
		return "free"
	case SubTypeReserved:
		return "reserved"
	case SubTypeSystemCollateralPool:
		return "collateral_pool"
	case SubTypeSystemTreasury:
		return "treasury"
	case SubTypeSystemFees:
		return "fees"
	case SubTypeExternalDeposits:
		return "deposits"
	case SubTypeExternalWithdrawals:
		return "withdrawals"
	case SubTypeExternalIssuance:
		return "issuance"
	case SubTypeExternalDex:
		return "dex"
	default:
		return "unknown"
	}
}
