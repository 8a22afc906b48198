package token

import (
	"math/big"
	"strconv"

	"energymarket/core/types"
)

const (
	EventTypeMintAuthoritySet = "token.mint_authority_set"
	EventTypeProducerVerified = "token.producer_verified"
	EventTypeProducerRevoked  = "token.producer_revoked"
	EventTypeMinted           = "token.minted"
	EventTypeBurned           = "token.burned"
	EventTypeTransferred      = "token.transferred"
	EventTypeLocked           = "token.locked"
	EventTypeUnlocked         = "token.unlocked"
)

// NewMintAuthoritySetEvent returns the payload emitted when the mint authority
// is configured.
func NewMintAuthoritySetEvent(authority types.Principal) *types.Event {
	return &types.Event{Type: EventTypeMintAuthoritySet, Attributes: map[string]string{
		"authority": authority.String(),
	}}
}

// NewProducerEvent returns the payload for producer verification changes.
func NewProducerEvent(eventType string, authority, producer types.Principal) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"authority": authority.String(),
		"producer":  producer.String(),
	}}
}

// NewMintedEvent returns the payload emitted for a successful mint.
func NewMintedEvent(producer, recipient types.Principal, amount, supply *big.Int) *types.Event {
	return &types.Event{Type: EventTypeMinted, Attributes: map[string]string{
		"producer":  producer.String(),
		"recipient": recipient.String(),
		"amount":    cloneBigInt(amount).String(),
		"supply":    cloneBigInt(supply).String(),
	}}
}

// NewBurnedEvent returns the payload emitted for a successful burn.
func NewBurnedEvent(owner types.Principal, amount, supply *big.Int) *types.Event {
	return &types.Event{Type: EventTypeBurned, Attributes: map[string]string{
		"owner":  owner.String(),
		"amount": cloneBigInt(amount).String(),
		"supply": cloneBigInt(supply).String(),
	}}
}

// NewTransferredEvent returns the payload emitted for a transfer.
func NewTransferredEvent(from, to types.Principal, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeTransferred, Attributes: map[string]string{
		"from":   from.String(),
		"to":     to.String(),
		"amount": cloneBigInt(amount).String(),
	}}
}

func newLockEvent(eventType string, l *Lock) *types.Event {
	attrs := make(map[string]string)
	if l != nil {
		attrs["lockId"] = strconv.FormatUint(l.ID, 10)
		attrs["owner"] = l.Owner.String()
		attrs["amount"] = cloneBigInt(l.Amount).String()
		attrs["expiry"] = strconv.FormatUint(l.Expiry, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

// NewLockedEvent returns the payload emitted when tokens are locked.
func NewLockedEvent(l *Lock) *types.Event { return newLockEvent(EventTypeLocked, l) }

// NewUnlockedEvent returns the payload emitted when a lock is released.
func NewUnlockedEvent(l *Lock) *types.Event { return newLockEvent(EventTypeUnlocked, l) }
