package state

import (
	"github.com/google/uuid"
)

// GrantKey identifies one authorization grant
type GrantKey struct {
	Owner      uuid.UUID
	CurrencyID string
	Delegate   uuid.UUID
}

// AuthorizationRegistry tracks deposit-backed delegation grants.
// Each grant lets the delegate call transfer_loan_from against the
// owner's position in one currency.
type AuthorizationRegistry struct {
	grants  map[GrantKey]int64 // grant -> reserved deposit
	byOwner map[uuid.UUID]map[GrantKey]struct{}
}

func NewAuthorizationRegistry() *AuthorizationRegistry {
	return &AuthorizationRegistry{
		grants:  make(map[GrantKey]int64),
		byOwner: make(map[uuid.UUID]map[GrantKey]struct{}),
	}
}

// IsAuthorized reports whether delegate may act on the owner's position.
// An owner is always authorized for their own positions.
func (ar *AuthorizationRegistry) IsAuthorized(owner uuid.UUID, currencyID string, delegate uuid.UUID) bool {
	if owner == delegate {
		return true
	}
	_, ok := ar.grants[GrantKey{Owner: owner, CurrencyID: currencyID, Delegate: delegate}]
	return ok
}

// Grant records an authorization holding the given deposit. Granting an
// existing triple again is a no-op that keeps the original deposit, so a
// repeated authorize never reserves twice. Returns whether a new grant
// was created.
func (ar *AuthorizationRegistry) Grant(owner uuid.UUID, currencyID string, delegate uuid.UUID, deposit int64) bool {
	key := GrantKey{Owner: owner, CurrencyID: currencyID, Delegate: delegate}
	if _, ok := ar.grants[key]; ok {
		return false
	}

	ar.grants[key] = deposit
	if ar.byOwner[owner] == nil {
		ar.byOwner[owner] = make(map[GrantKey]struct{})
	}
	ar.byOwner[owner][key] = struct{}{}
	return true
}

// Revoke removes one grant and returns its deposit for refund.
func (ar *AuthorizationRegistry) Revoke(owner uuid.UUID, currencyID string, delegate uuid.UUID) (int64, error) {
	key := GrantKey{Owner: owner, CurrencyID: currencyID, Delegate: delegate}
	deposit, ok := ar.grants[key]
	if !ok {
		return 0, ErrNotAuthorized
	}

	delete(ar.grants, key)
	if owned := ar.byOwner[owner]; owned != nil {
		delete(owned, key)
		if len(owned) == 0 {
			delete(ar.byOwner, owner)
		}
	}
	return deposit, nil
}

// RevokeAll removes every grant the owner has issued across all
// currencies and returns the total deposit to refund. Zero grants is
// not an error.
func (ar *AuthorizationRegistry) RevokeAll(owner uuid.UUID) (totalDeposit int64, revoked int) {
	owned := ar.byOwner[owner]
	if owned == nil {
		return 0, 0
	}

	for key := range owned {
		totalDeposit += ar.grants[key]
		delete(ar.grants, key)
		revoked++
	}
	delete(ar.byOwner, owner)
	return totalDeposit, revoked
}

// GetGrantDeposit returns the reserved deposit behind a grant.
func (ar *AuthorizationRegistry) GetGrantDeposit(owner uuid.UUID, currencyID string, delegate uuid.UUID) (int64, bool) {
	deposit, ok := ar.grants[GrantKey{Owner: owner, CurrencyID: currencyID, Delegate: delegate}]
	return deposit, ok
}

// GetOwnerGrants returns the owner's grants with their deposits, via
// the secondary index.
func (ar *AuthorizationRegistry) GetOwnerGrants(owner uuid.UUID) map[GrantKey]int64 {
	owned := ar.byOwner[owner]
	result := make(map[GrantKey]int64, len(owned))
	for key := range owned {
		result[key] = ar.grants[key]
	}
	return result
}

// OwnerGrantCount returns how many grants the owner has issued.
func (ar *AuthorizationRegistry) OwnerGrantCount(owner uuid.UUID) int {
	return len(ar.byOwner[owner])
}

// GetAllGrants returns a copy of every grant (for snapshot creation)
func (ar *AuthorizationRegistry) GetAllGrants() map[GrantKey]int64 {
	result := make(map[GrantKey]int64, len(ar.grants))
	for k, v := range ar.grants {
		result[k] = v
	}
	return result
}

// RestoreGrant directly sets a grant (used for snapshot restore)
func (ar *AuthorizationRegistry) RestoreGrant(key GrantKey, deposit int64) {
	ar.grants[key] = deposit
	if ar.byOwner[key.Owner] == nil {
		ar.byOwner[key.Owner] = make(map[GrantKey]struct{})
	}
	ar.byOwner[key.Owner][key] = struct{}{}
}
