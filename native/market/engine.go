package market

import (
	"errors"
	"math/big"

	"energymarket/core/events"
	"energymarket/core/types"
	nativecommon "energymarket/native/common"
)

var errNilState = errors.New("market engine: state not configured")

type engineState interface {
	MarketParams() (*Params, error)
	MarketPutParams(*Params) error
	MarketOfferPut(*Offer) error
	MarketOfferGet(id uint64) (*Offer, bool, error)
	MarketBidPut(*Bid) error
	MarketBidGet(id uint64) (*Bid, bool, error)
	MarketOfferMatch(offerID uint64) (uint64, bool, error)
	MarketSetOfferMatch(offerID, bidID uint64) error
	MarketDeleteOfferMatch(offerID uint64) error
	MarketBidMatch(bidID uint64) (uint64, bool, error)
	MarketSetBidMatch(bidID, offerID uint64) error
	MarketDeleteBidMatch(bidID uint64) error
}

// Engine runs the offer/bid order book. Matching reserves an explicit
// caller-chosen pair; execution closes both orders and clears the reservation.
// Value movement is left to the settlement path that invokes ExecuteTrade.
type Engine struct {
	state   engineState
	emitter events.Emitter
	pauses  nativecommon.PauseView
}

// NewEngine creates a marketplace engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the pause view consulted before every mutation.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(events.Typed{Payload: evt})
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nil
}

func (e *Engine) guard() error {
	if err := e.ready(); err != nil {
		return err
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

func (e *Engine) params() (*Params, error) {
	p, err := e.state.MarketParams()
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// SetAuthorityContract configures the authority contract. It succeeds exactly
// once.
func (e *Engine) SetAuthorityContract(call types.CallContext, authority types.Principal) error {
	if err := e.guard(); err != nil {
		return err
	}
	if authority.IsZero() || authority.IsNull() {
		return ErrInvalidAuthority
	}
	p, err := e.params()
	if err != nil {
		return err
	}
	if p.HasAuthority {
		return ErrAuthorityAlreadySet
	}
	p.AuthorityContract = authority
	p.HasAuthority = true
	if err := e.state.MarketPutParams(p); err != nil {
		return err
	}
	e.emit(NewAuthoritySetEvent(authority))
	return nil
}

// updateParams applies fn once the caller is confirmed as the configured
// authority contract.
func (e *Engine) updateParams(call types.CallContext, fn func(*Params) error) error {
	if err := e.guard(); err != nil {
		return err
	}
	p, err := e.params()
	if err != nil {
		return err
	}
	if !p.HasAuthority {
		return ErrAuthorityNotVerified
	}
	if call.Caller != p.AuthorityContract {
		return ErrNotAuthorized
	}
	if err := fn(p); err != nil {
		return err
	}
	if err := e.state.MarketPutParams(p); err != nil {
		return err
	}
	e.emit(NewParamsUpdatedEvent(p))
	return nil
}

// SetMaxOffers updates the offer capacity.
func (e *Engine) SetMaxOffers(call types.CallContext, max uint64) error {
	return e.updateParams(call, func(p *Params) error {
		if max == 0 {
			return ErrInvalidLimit
		}
		p.MaxOffers = max
		return nil
	})
}

// SetMaxBids updates the bid capacity.
func (e *Engine) SetMaxBids(call types.CallContext, max uint64) error {
	return e.updateParams(call, func(p *Params) error {
		if max == 0 {
			return ErrInvalidLimit
		}
		p.MaxBids = max
		return nil
	})
}

// SetMarketplaceFee updates the stored marketplace fee.
func (e *Engine) SetMarketplaceFee(call types.CallContext, fee uint64) error {
	return e.updateParams(call, func(p *Params) error {
		p.Fee = fee
		return nil
	})
}

// OfferParams describes an offer listed by the caller.
type OfferParams struct {
	Amount     *big.Int
	Price      *big.Int
	EnergyType EnergyType
	Location   string
	Expiry     uint64
	Currency   types.Currency
}

// ListOffer records a new open offer with the caller as producer and returns
// its id.
func (e *Engine) ListOffer(call types.CallContext, params OfferParams) (uint64, error) {
	if err := e.guard(); err != nil {
		return 0, err
	}
	p, err := e.params()
	if err != nil {
		return 0, err
	}
	switch {
	case p.NextOfferID >= p.MaxOffers:
		return 0, ErrMaxOffersExceeded
	case params.Amount == nil || params.Amount.Sign() <= 0:
		return 0, ErrInvalidAmount
	case params.Price == nil || params.Price.Sign() <= 0:
		return 0, ErrInvalidPrice
	case !params.EnergyType.Valid():
		return 0, ErrInvalidEnergyType
	case !validLocation(params.Location):
		return 0, ErrInvalidLocation
	case params.Expiry <= call.Height:
		return 0, ErrInvalidExpiry
	case !params.Currency.Valid():
		return 0, ErrInvalidCurrency
	case !p.HasAuthority:
		return 0, ErrAuthorityNotVerified
	}
	offer := &Offer{
		ID:         p.NextOfferID,
		Producer:   call.Caller,
		Amount:     cloneBigInt(params.Amount),
		Price:      cloneBigInt(params.Price),
		EnergyType: params.EnergyType,
		Location:   params.Location,
		Expiry:     params.Expiry,
		Status:     OrderOpen,
		Currency:   params.Currency,
	}
	p.NextOfferID++
	if err := e.state.MarketOfferPut(offer); err != nil {
		return 0, err
	}
	if err := e.state.MarketPutParams(p); err != nil {
		return 0, err
	}
	e.emit(NewOfferListedEvent(offer))
	return offer.ID, nil
}

// BidParams describes a bid created by the caller.
type BidParams struct {
	Amount            *big.Int
	MaxPrice          *big.Int
	PreferredType     EnergyType
	PreferredLocation string
	Expiry            uint64
	Currency          types.Currency
}

// CreateBid records a new open bid with the caller as buyer and returns its id.
func (e *Engine) CreateBid(call types.CallContext, params BidParams) (uint64, error) {
	if err := e.guard(); err != nil {
		return 0, err
	}
	p, err := e.params()
	if err != nil {
		return 0, err
	}
	switch {
	case p.NextBidID >= p.MaxBids:
		return 0, ErrMaxBidsExceeded
	case params.Amount == nil || params.Amount.Sign() <= 0:
		return 0, ErrInvalidAmount
	case params.MaxPrice == nil || params.MaxPrice.Sign() <= 0:
		return 0, ErrInvalidMaxPrice
	case !params.PreferredType.ValidPreference():
		return 0, ErrInvalidPreferredType
	case !validPreferredLocation(params.PreferredLocation):
		return 0, ErrInvalidPreferredLocation
	case params.Expiry <= call.Height:
		return 0, ErrInvalidExpiry
	case !params.Currency.Valid():
		return 0, ErrInvalidCurrency
	case !p.HasAuthority:
		return 0, ErrAuthorityNotVerified
	}
	bid := &Bid{
		ID:                p.NextBidID,
		Buyer:             call.Caller,
		Amount:            cloneBigInt(params.Amount),
		MaxPrice:          cloneBigInt(params.MaxPrice),
		PreferredType:     params.PreferredType,
		PreferredLocation: params.PreferredLocation,
		Expiry:            params.Expiry,
		Status:            OrderOpen,
		Currency:          params.Currency,
	}
	p.NextBidID++
	if err := e.state.MarketBidPut(bid); err != nil {
		return 0, err
	}
	if err := e.state.MarketPutParams(p); err != nil {
		return 0, err
	}
	e.emit(NewBidCreatedEvent(bid))
	return bid.ID, nil
}

func (e *Engine) loadPair(offerID, bidID uint64) (*Offer, *Bid, error) {
	offer, ok, err := e.state.MarketOfferGet(offerID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrOfferNotFound
	}
	bid, ok, err := e.state.MarketBidGet(bidID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrBidNotFound
	}
	return offer.Clone(), bid.Clone(), nil
}

// Compatible reports whether offer and bid may trade at height. Both orders
// must be open and unexpired, the offer must cover the bid amount at or below
// the bid's max price, and type, location and currency must agree.
func Compatible(offer *Offer, bid *Bid, height uint64) error {
	if offer == nil || bid == nil {
		return ErrInvalidMatch
	}
	if offer.Status != OrderOpen || bid.Status != OrderOpen {
		return ErrInvalidStatus
	}
	if offer.Amount.Cmp(bid.Amount) < 0 || offer.Price.Cmp(bid.MaxPrice) > 0 {
		return ErrInvalidMatch
	}
	if !bid.PreferredType.Accepts(offer.EnergyType) {
		return ErrInvalidMatch
	}
	if bid.PreferredLocation != AnyLocation && bid.PreferredLocation != offer.Location {
		return ErrInvalidMatch
	}
	if offer.Currency != bid.Currency {
		return ErrInvalidMatch
	}
	if offer.Expiry <= height || bid.Expiry <= height {
		return ErrOrderExpired
	}
	return nil
}

// MatchOrder reserves the offer and bid for each other. No funds move and
// both orders stay open.
func (e *Engine) MatchOrder(call types.CallContext, offerID, bidID uint64) error {
	if err := e.guard(); err != nil {
		return err
	}
	offer, bid, err := e.loadPair(offerID, bidID)
	if err != nil {
		return err
	}
	if err := Compatible(offer, bid, call.Height); err != nil {
		return err
	}
	if _, matched, err := e.state.MarketOfferMatch(offerID); err != nil {
		return err
	} else if matched {
		return ErrOfferMatched
	}
	if _, matched, err := e.state.MarketBidMatch(bidID); err != nil {
		return err
	} else if matched {
		return ErrBidMatched
	}

	if err := e.state.MarketSetOfferMatch(offerID, bidID); err != nil {
		return err
	}
	if err := e.state.MarketSetBidMatch(bidID, offerID); err != nil {
		return err
	}
	e.emit(NewOrderMatchedEvent(offerID, bidID, call.Caller))
	return nil
}

// ExecuteTrade settles a matched pair: it re-validates compatibility, closes
// both orders and clears the match index. The returned trade carries the bid
// amount at the offer price.
func (e *Engine) ExecuteTrade(call types.CallContext, offerID, bidID uint64) (*Trade, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	offer, bid, err := e.loadPair(offerID, bidID)
	if err != nil {
		return nil, err
	}
	matchedBid, ok, err := e.state.MarketOfferMatch(offerID)
	if err != nil {
		return nil, err
	}
	if !ok || matchedBid != bidID {
		return nil, ErrTradeFailed
	}
	matchedOffer, ok, err := e.state.MarketBidMatch(bidID)
	if err != nil {
		return nil, err
	}
	if !ok || matchedOffer != offerID {
		return nil, ErrTradeFailed
	}
	if err := Compatible(offer, bid, call.Height); err != nil {
		return nil, err
	}

	offer.Status = OrderClosed
	bid.Status = OrderClosed
	if err := e.state.MarketOfferPut(offer); err != nil {
		return nil, err
	}
	if err := e.state.MarketBidPut(bid); err != nil {
		return nil, err
	}
	if err := e.state.MarketDeleteOfferMatch(offerID); err != nil {
		return nil, err
	}
	if err := e.state.MarketDeleteBidMatch(bidID); err != nil {
		return nil, err
	}
	trade := &Trade{
		OfferID:  offerID,
		BidID:    bidID,
		Producer: offer.Producer,
		Buyer:    bid.Buyer,
		Amount:   cloneBigInt(bid.Amount),
		Price:    cloneBigInt(offer.Price),
		Currency: offer.Currency,
		Height:   call.Height,
	}
	e.emit(NewTradeExecutedEvent(trade))
	return trade, nil
}

// CancelOffer closes an open, unmatched offer owned by the caller.
func (e *Engine) CancelOffer(call types.CallContext, offerID uint64) error {
	if err := e.guard(); err != nil {
		return err
	}
	offer, ok, err := e.state.MarketOfferGet(offerID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrOfferNotFound
	}
	offer = offer.Clone()
	if offer.Producer != call.Caller {
		return ErrNotAuthorized
	}
	if offer.Status != OrderOpen {
		return ErrInvalidStatus
	}
	if _, matched, err := e.state.MarketOfferMatch(offerID); err != nil {
		return err
	} else if matched {
		return ErrCancelNotAllowed
	}
	offer.Status = OrderClosed
	if err := e.state.MarketOfferPut(offer); err != nil {
		return err
	}
	e.emit(NewOfferCancelledEvent(offer))
	return nil
}

// CancelBid closes an open, unmatched bid owned by the caller.
func (e *Engine) CancelBid(call types.CallContext, bidID uint64) error {
	if err := e.guard(); err != nil {
		return err
	}
	bid, ok, err := e.state.MarketBidGet(bidID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBidNotFound
	}
	bid = bid.Clone()
	if bid.Buyer != call.Caller {
		return ErrNotAuthorized
	}
	if bid.Status != OrderOpen {
		return ErrInvalidStatus
	}
	if _, matched, err := e.state.MarketBidMatch(bidID); err != nil {
		return err
	} else if matched {
		return ErrCancelNotAllowed
	}
	bid.Status = OrderClosed
	if err := e.state.MarketBidPut(bid); err != nil {
		return err
	}
	e.emit(NewBidCancelledEvent(bid))
	return nil
}

// Offer returns the offer with the supplied id.
func (e *Engine) Offer(id uint64) (*Offer, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	offer, ok, err := e.state.MarketOfferGet(id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return offer.Clone(), true, nil
}

// Bid returns the bid with the supplied id.
func (e *Engine) Bid(id uint64) (*Bid, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	bid, ok, err := e.state.MarketBidGet(id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return bid.Clone(), true, nil
}

// OfferMatch returns the bid reserved for the offer, if any.
func (e *Engine) OfferMatch(offerID uint64) (uint64, bool, error) {
	if err := e.ready(); err != nil {
		return 0, false, err
	}
	return e.state.MarketOfferMatch(offerID)
}

// BidMatch returns the offer reserved for the bid, if any.
func (e *Engine) BidMatch(bidID uint64) (uint64, bool, error) {
	if err := e.ready(); err != nil {
		return 0, false, err
	}
	return e.state.MarketBidMatch(bidID)
}

// Params returns the current marketplace configuration.
func (e *Engine) Params() (*Params, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.params()
}

// OfferProducer resolves the producer of an offer. It lets the escrow engine
// bind the producer of the traded offer.
func (e *Engine) OfferProducer(offerID uint64) (types.Principal, bool, error) {
	offer, ok, err := e.Offer(offerID)
	if err != nil || !ok {
		return "", ok, err
	}
	return offer.Producer, true, nil
}
