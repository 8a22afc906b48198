package escrow

import (
	"strconv"

	"energymarket/core/types"
)

const (
	EventTypeDisputeAuthoritySet = "escrow.dispute_authority_set"
	EventTypeEscrowInitiated     = "escrow.initiated"
	EventTypeEscrowReleased      = "escrow.released"
	EventTypeEscrowRefunded      = "escrow.refunded"
	EventTypeEscrowDisputed      = "escrow.disputed"
	EventTypeEscrowResolved      = "escrow.resolved"
	EventTypeEscrowCancelled     = "escrow.cancelled"
)

// NewDisputeAuthoritySetEvent returns the payload emitted when the dispute
// authority is configured.
func NewDisputeAuthoritySetEvent(authority types.Principal) *types.Event {
	return &types.Event{Type: EventTypeDisputeAuthoritySet, Attributes: map[string]string{
		"authority": authority.String(),
	}}
}

// NewInitiatedEvent returns the canonical event payload for a newly initiated
// escrow.
func NewInitiatedEvent(e *Escrow) *types.Event {
	return newEscrowEvent(EventTypeEscrowInitiated, e, "")
}

// NewReleasedEvent returns the canonical event payload for a release of escrow
// funds to the producer.
func NewReleasedEvent(e *Escrow) *types.Event {
	return newEscrowEvent(EventTypeEscrowReleased, e, e.producerOrEmpty())
}

// NewRefundedEvent returns the canonical event payload for an escrow refund to
// the buyer.
func NewRefundedEvent(e *Escrow) *types.Event {
	return newEscrowEvent(EventTypeEscrowRefunded, e, e.buyerOrEmpty())
}

// NewDisputedEvent returns the canonical event payload emitted when an escrow is
// marked as disputed.
func NewDisputedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowDisputed, e, "") }

// NewResolvedEvent returns the canonical event payload emitted when a dispute is
// resolved in favour of recipient.
func NewResolvedEvent(e *Escrow, recipient types.Principal) *types.Event {
	return newEscrowEvent(EventTypeEscrowResolved, e, recipient)
}

// NewCancelledEvent returns the payload emitted when the buyer cancels an
// expired escrow.
func NewCancelledEvent(e *Escrow) *types.Event {
	return newEscrowEvent(EventTypeEscrowCancelled, e, e.buyerOrEmpty())
}

func (e *Escrow) producerOrEmpty() types.Principal {
	if e == nil {
		return ""
	}
	return e.Producer
}

func (e *Escrow) buyerOrEmpty() types.Principal {
	if e == nil {
		return ""
	}
	return e.Buyer
}

func newEscrowEvent(eventType string, e *Escrow, recipient types.Principal) *types.Event {
	attrs := make(map[string]string)
	if e == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeEscrow(e)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = strconv.FormatUint(sanitized.ID, 10)
	attrs["offerId"] = strconv.FormatUint(sanitized.OfferID, 10)
	attrs["bidId"] = strconv.FormatUint(sanitized.BidID, 10)
	attrs["producer"] = sanitized.Producer.String()
	attrs["buyer"] = sanitized.Buyer.String()
	attrs["amount"] = sanitized.Amount.String()
	attrs["price"] = sanitized.Price.String()
	attrs["total"] = sanitized.Total().String()
	attrs["currency"] = sanitized.Currency.String()
	attrs["status"] = sanitized.Status.String()
	attrs["createdAt"] = strconv.FormatUint(sanitized.CreatedAt, 10)
	attrs["expiresAt"] = strconv.FormatUint(sanitized.ExpiresAt, 10)
	if sanitized.HasTokenLock {
		attrs["tokenLockId"] = strconv.FormatUint(sanitized.TokenLockID, 10)
	}
	if !recipient.IsZero() {
		attrs["recipient"] = recipient.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
