package market

import (
	"strconv"

	"energymarket/core/types"
)

const (
	EventTypeAuthoritySet   = "market.authority_set"
	EventTypeParamsUpdated  = "market.params_updated"
	EventTypeOfferListed    = "market.offer_listed"
	EventTypeBidCreated     = "market.bid_created"
	EventTypeOrderMatched   = "market.order_matched"
	EventTypeTradeExecuted  = "market.trade_executed"
	EventTypeOfferCancelled = "market.offer_cancelled"
	EventTypeBidCancelled   = "market.bid_cancelled"
)

// NewAuthoritySetEvent returns the payload emitted when the authority contract
// is configured.
func NewAuthoritySetEvent(authority types.Principal) *types.Event {
	return &types.Event{Type: EventTypeAuthoritySet, Attributes: map[string]string{
		"authority": authority.String(),
	}}
}

// NewParamsUpdatedEvent reports the marketplace limits after an update.
func NewParamsUpdatedEvent(p *Params) *types.Event {
	attrs := make(map[string]string)
	if p != nil {
		attrs["maxOffers"] = strconv.FormatUint(p.MaxOffers, 10)
		attrs["maxBids"] = strconv.FormatUint(p.MaxBids, 10)
		attrs["fee"] = strconv.FormatUint(p.Fee, 10)
	}
	return &types.Event{Type: EventTypeParamsUpdated, Attributes: attrs}
}

func offerAttributes(o *Offer) map[string]string {
	attrs := make(map[string]string)
	if o == nil {
		return attrs
	}
	attrs["offerId"] = strconv.FormatUint(o.ID, 10)
	attrs["producer"] = o.Producer.String()
	attrs["amount"] = cloneBigInt(o.Amount).String()
	attrs["price"] = cloneBigInt(o.Price).String()
	attrs["energyType"] = o.EnergyType.String()
	attrs["location"] = o.Location
	attrs["expiry"] = strconv.FormatUint(o.Expiry, 10)
	attrs["currency"] = o.Currency.String()
	attrs["status"] = o.Status.String()
	return attrs
}

func bidAttributes(b *Bid) map[string]string {
	attrs := make(map[string]string)
	if b == nil {
		return attrs
	}
	attrs["bidId"] = strconv.FormatUint(b.ID, 10)
	attrs["buyer"] = b.Buyer.String()
	attrs["amount"] = cloneBigInt(b.Amount).String()
	attrs["maxPrice"] = cloneBigInt(b.MaxPrice).String()
	attrs["preferredType"] = b.PreferredType.String()
	attrs["preferredLocation"] = b.PreferredLocation
	attrs["expiry"] = strconv.FormatUint(b.Expiry, 10)
	attrs["currency"] = b.Currency.String()
	attrs["status"] = b.Status.String()
	return attrs
}

// NewOfferListedEvent returns the payload for a newly listed offer.
func NewOfferListedEvent(o *Offer) *types.Event {
	return &types.Event{Type: EventTypeOfferListed, Attributes: offerAttributes(o)}
}

// NewOfferCancelledEvent returns the payload for a cancelled offer.
func NewOfferCancelledEvent(o *Offer) *types.Event {
	return &types.Event{Type: EventTypeOfferCancelled, Attributes: offerAttributes(o)}
}

// NewBidCreatedEvent returns the payload for a newly created bid.
func NewBidCreatedEvent(b *Bid) *types.Event {
	return &types.Event{Type: EventTypeBidCreated, Attributes: bidAttributes(b)}
}

// NewBidCancelledEvent returns the payload for a cancelled bid.
func NewBidCancelledEvent(b *Bid) *types.Event {
	return &types.Event{Type: EventTypeBidCancelled, Attributes: bidAttributes(b)}
}

// NewOrderMatchedEvent returns the payload recorded when an offer and a bid are
// reserved for each other.
func NewOrderMatchedEvent(offerID, bidID uint64, matcher types.Principal) *types.Event {
	return &types.Event{Type: EventTypeOrderMatched, Attributes: map[string]string{
		"offerId": strconv.FormatUint(offerID, 10),
		"bidId":   strconv.FormatUint(bidID, 10),
		"matcher": matcher.String(),
	}}
}

// NewTradeExecutedEvent returns the payload for a settled trade.
func NewTradeExecutedEvent(t *Trade) *types.Event {
	attrs := make(map[string]string)
	if t != nil {
		attrs["offerId"] = strconv.FormatUint(t.OfferID, 10)
		attrs["bidId"] = strconv.FormatUint(t.BidID, 10)
		attrs["producer"] = t.Producer.String()
		attrs["buyer"] = t.Buyer.String()
		attrs["amount"] = cloneBigInt(t.Amount).String()
		attrs["price"] = cloneBigInt(t.Price).String()
		attrs["total"] = t.Total().String()
		attrs["currency"] = t.Currency.String()
		attrs["height"] = strconv.FormatUint(t.Height, 10)
	}
	return &types.Event{Type: EventTypeTradeExecuted, Attributes: attrs}
}
