package escrow

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"energymarket/core/types"
)

const moduleName = "escrow"

// DefaultCustodian is the account holding natively custodied escrow funds.
const DefaultCustodian types.Principal = "ST_ESCROW_CONTRACT"

// EscrowStatus represents the lifecycle states of an escrow.
type EscrowStatus uint8

const (
	EscrowActive EscrowStatus = iota
	EscrowReleased
	EscrowRefunded
	EscrowDisputed
	EscrowCancelled
)

// Valid reports whether the status value is within the supported range.
func (s EscrowStatus) Valid() bool {
	switch s {
	case EscrowActive, EscrowReleased, EscrowRefunded, EscrowDisputed, EscrowCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible.
func (s EscrowStatus) Terminal() bool {
	switch s {
	case EscrowReleased, EscrowRefunded, EscrowCancelled:
		return true
	default:
		return false
	}
}

func (s EscrowStatus) String() string {
	switch s {
	case EscrowActive:
		return "active"
	case EscrowReleased:
		return "released"
	case EscrowRefunded:
		return "refunded"
	case EscrowDisputed:
		return "disputed"
	case EscrowCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Escrow captures a single conditional custody agreement between the producer
// of an offer and the buyer behind a bid. The producer is resolved and bound
// when the escrow is initiated.
type Escrow struct {
	ID           uint64
	OfferID      uint64
	BidID        uint64
	Producer     types.Principal
	Buyer        types.Principal
	Amount       *big.Int
	Price        *big.Int
	Currency     types.Currency
	Status       EscrowStatus
	CreatedAt    uint64
	ExpiresAt    uint64
	TokenLockID  uint64
	HasTokenLock bool
}

// Clone returns a deep copy of the escrow object so callers can safely mutate
// the copy without affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Amount = cloneBigInt(e.Amount)
	clone.Price = cloneBigInt(e.Price)
	return &clone
}

// Total returns amount × price.
func (e *Escrow) Total() *big.Int {
	if e == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(cloneBigInt(e.Amount), cloneBigInt(e.Price))
}

// Registry holds the dispute authority and the escrow id counter.
type Registry struct {
	DisputeAuthority    types.Principal
	HasDisputeAuthority bool
	NextEscrowID        uint64
}

// Clone returns a copy of the registry.
func (r *Registry) Clone() *Registry {
	if r == nil {
		return &Registry{}
	}
	clone := *r
	return &clone
}

// SanitizeEscrow validates the supplied escrow, returning a cloned instance
// with non-nil amount fields. The function does not mutate the original value.
func SanitizeEscrow(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("nil escrow")
	}
	clone := e.Clone()
	if clone.Amount.Sign() <= 0 || clone.Price.Sign() <= 0 {
		return nil, fmt.Errorf("escrow amount and price must be positive")
	}
	if !clone.Currency.Valid() {
		return nil, fmt.Errorf("invalid escrow currency: %d", clone.Currency)
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid escrow status: %d", clone.Status)
	}
	if clone.Producer.IsZero() || clone.Buyer.IsZero() {
		return nil, fmt.Errorf("escrow parties required")
	}
	return clone, nil
}

// checkedTotal multiplies amount by price, reporting false when the product
// does not fit in 256 bits.
func checkedTotal(amount, price *big.Int) (*big.Int, bool) {
	a, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, false
	}
	p, overflow := uint256.FromBig(price)
	if overflow {
		return nil, false
	}
	total, overflow := new(uint256.Int).MulOverflow(a, p)
	if overflow {
		return nil, false
	}
	return total.ToBig(), true
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
