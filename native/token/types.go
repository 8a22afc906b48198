package token

import (
	"fmt"
	"math/big"

	"energymarket/core/types"
)

const moduleName = "token"

// DefaultCustodian is the account that holds locked tokens on behalf of their
// owners.
const DefaultCustodian types.Principal = "ST_TOKEN_CONTRACT"

// DefaultSupplyCap is the maximum amount of tokens that may ever circulate.
var DefaultSupplyCap = big.NewInt(100_000_000_000_000)

// Lock is a time-locked token position. The locked amount is held by the
// custodian until the owner unlocks it at or after Expiry.
type Lock struct {
	ID     uint64
	Owner  types.Principal
	Amount *big.Int
	Expiry uint64
}

// Clone returns a deep copy of the lock.
func (l *Lock) Clone() *Lock {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Amount = cloneBigInt(l.Amount)
	return &clone
}

// ActiveAt reports whether the lock is still locked at the given height.
func (l *Lock) ActiveAt(height uint64) bool {
	return l != nil && height < l.Expiry
}

// Registry holds the singleton ledger configuration that is written once and
// the lock id counter.
type Registry struct {
	MintAuthority    types.Principal
	HasMintAuthority bool
	NextLockID       uint64
}

// Clone returns a copy of the registry.
func (r *Registry) Clone() *Registry {
	if r == nil {
		return &Registry{}
	}
	clone := *r
	return &clone
}

// SanitizeLock validates a lock loaded from or written to state.
func SanitizeLock(l *Lock) (*Lock, error) {
	if l == nil {
		return nil, fmt.Errorf("token: nil lock")
	}
	clone := l.Clone()
	if clone.Owner.IsZero() {
		return nil, fmt.Errorf("token: lock owner required")
	}
	if clone.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("token: lock amount must be positive")
	}
	return clone, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
