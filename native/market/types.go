package market

import (
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"energymarket/core/types"
)

const moduleName = "market"

const (
	DefaultMaxOffers uint64 = 10_000
	DefaultMaxBids   uint64 = 10_000
	DefaultFee       uint64 = 500

	// AnyLocation matches every offer location when used as a bid preference.
	AnyLocation = "any"

	maxLocationLength = 100
)

// EnergyType classifies the source of offered energy.
type EnergyType uint8

const (
	EnergyUnknown EnergyType = iota
	EnergySolar
	EnergyWind
	EnergyHydro
	EnergyGeothermal
	// EnergyAny is only valid as a bid preference.
	EnergyAny
)

// Valid reports whether the type may be offered.
func (t EnergyType) Valid() bool {
	switch t {
	case EnergySolar, EnergyWind, EnergyHydro, EnergyGeothermal:
		return true
	default:
		return false
	}
}

// ValidPreference reports whether the type may be requested by a bid.
func (t EnergyType) ValidPreference() bool {
	return t == EnergyAny || t.Valid()
}

// Accepts reports whether a bid preferring t accepts an offer of type offered.
func (t EnergyType) Accepts(offered EnergyType) bool {
	return t == EnergyAny || t == offered
}

func (t EnergyType) String() string {
	switch t {
	case EnergySolar:
		return "solar"
	case EnergyWind:
		return "wind"
	case EnergyHydro:
		return "hydro"
	case EnergyGeothermal:
		return "geothermal"
	case EnergyAny:
		return "any"
	default:
		return "unknown"
	}
}

// ParseEnergyType resolves an energy type name, ignoring case.
func ParseEnergyType(name string) (EnergyType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "solar":
		return EnergySolar, nil
	case "wind":
		return EnergyWind, nil
	case "hydro":
		return EnergyHydro, nil
	case "geothermal":
		return EnergyGeothermal, nil
	case "any":
		return EnergyAny, nil
	default:
		return EnergyUnknown, fmt.Errorf("unsupported energy type: %q", name)
	}
}

// OrderStatus tracks the open → closed lifecycle shared by offers and bids.
type OrderStatus uint8

const (
	OrderOpen OrderStatus = iota
	OrderClosed
)

func (s OrderStatus) Valid() bool { return s == OrderOpen || s == OrderClosed }

func (s OrderStatus) String() string {
	switch s {
	case OrderOpen:
		return "open"
	case OrderClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Offer is energy listed for sale by a producer.
type Offer struct {
	ID         uint64
	Producer   types.Principal
	Amount     *big.Int
	Price      *big.Int
	EnergyType EnergyType
	Location   string
	Expiry     uint64
	Status     OrderStatus
	Currency   types.Currency
}

// Clone returns a deep copy of the offer.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Amount = cloneBigInt(o.Amount)
	clone.Price = cloneBigInt(o.Price)
	return &clone
}

// Bid is a buyer's request for energy at or below MaxPrice.
type Bid struct {
	ID                uint64
	Buyer             types.Principal
	Amount            *big.Int
	MaxPrice          *big.Int
	PreferredType     EnergyType
	PreferredLocation string
	Expiry            uint64
	Status            OrderStatus
	Currency          types.Currency
}

// Clone returns a deep copy of the bid.
func (b *Bid) Clone() *Bid {
	if b == nil {
		return nil
	}
	clone := *b
	clone.Amount = cloneBigInt(b.Amount)
	clone.MaxPrice = cloneBigInt(b.MaxPrice)
	return &clone
}

// Params holds the marketplace configuration and id counters.
type Params struct {
	AuthorityContract types.Principal
	HasAuthority      bool
	MaxOffers         uint64
	MaxBids           uint64
	// Fee is configurable but not deducted during settlement.
	Fee         uint64
	NextOfferID uint64
	NextBidID   uint64
}

// DefaultParams returns the marketplace configuration used before any
// administrative update.
func DefaultParams() *Params {
	return &Params{
		MaxOffers: DefaultMaxOffers,
		MaxBids:   DefaultMaxBids,
		Fee:       DefaultFee,
	}
}

// Clone returns a copy of the params.
func (p *Params) Clone() *Params {
	if p == nil {
		return DefaultParams()
	}
	clone := *p
	return &clone
}

// Trade describes a settled offer/bid pair. Amount is the bid amount and Price
// the offer price.
type Trade struct {
	OfferID  uint64
	BidID    uint64
	Producer types.Principal
	Buyer    types.Principal
	Amount   *big.Int
	Price    *big.Int
	Currency types.Currency
	Height   uint64
}

// Total returns Amount × Price.
func (t *Trade) Total() *big.Int {
	if t == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(cloneBigInt(t.Amount), cloneBigInt(t.Price))
}

func validLocation(location string) bool {
	n := utf8.RuneCountInString(location)
	return n >= 1 && n <= maxLocationLength
}

func validPreferredLocation(location string) bool {
	return location == AnyLocation || validLocation(location)
}

// SanitizeOffer validates an offer loaded from or written to state.
func SanitizeOffer(o *Offer) (*Offer, error) {
	if o == nil {
		return nil, fmt.Errorf("market: nil offer")
	}
	clone := o.Clone()
	if clone.Producer.IsZero() {
		return nil, fmt.Errorf("market: offer producer required")
	}
	if clone.Amount.Sign() <= 0 || clone.Price.Sign() <= 0 {
		return nil, fmt.Errorf("market: offer amount and price must be positive")
	}
	if !clone.EnergyType.Valid() || !clone.Currency.Valid() || !clone.Status.Valid() {
		return nil, fmt.Errorf("market: invalid offer enumeration")
	}
	if !validLocation(clone.Location) {
		return nil, fmt.Errorf("market: invalid offer location")
	}
	return clone, nil
}

// SanitizeBid validates a bid loaded from or written to state.
func SanitizeBid(b *Bid) (*Bid, error) {
	if b == nil {
		return nil, fmt.Errorf("market: nil bid")
	}
	clone := b.Clone()
	if clone.Buyer.IsZero() {
		return nil, fmt.Errorf("market: bid buyer required")
	}
	if clone.Amount.Sign() <= 0 || clone.MaxPrice.Sign() <= 0 {
		return nil, fmt.Errorf("market: bid amount and max price must be positive")
	}
	if !clone.PreferredType.ValidPreference() || !clone.Currency.Valid() || !clone.Status.Valid() {
		return nil, fmt.Errorf("market: invalid bid enumeration")
	}
	if !validPreferredLocation(clone.PreferredLocation) {
		return nil, fmt.Errorf("market: invalid bid location")
	}
	return clone, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
