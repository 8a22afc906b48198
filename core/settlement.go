package core

import (
	"context"
	"fmt"

	"energymarket/core/types"
	"energymarket/native/escrow"
	"energymarket/native/market"
)

// Settlement is the outcome of a composed trade execution.
type Settlement struct {
	Receipt  *types.Receipt
	Trade    *market.Trade
	EscrowID uint64
	// HasEscrow is false when the trade settled without opening an escrow.
	HasEscrow bool
}

// ExecuteTrade executes a matched trade. With escrowExpiresIn > 0 the buyer's
// payment of bid.amount × offer.price is moved into a new escrow in the same
// atomic call; if opening the escrow fails the trade is not executed either.
// tokenLockID optionally links an existing ledger lock of the buyer.
func (n *Node) ExecuteTrade(ctx context.Context, caller types.Principal, offerID, bidID, escrowExpiresIn uint64, tokenLockID *uint64) (*Settlement, error) {
	out := &Settlement{}
	receipt, err := n.Apply(ctx, caller, "market.execute_trade", func(call types.CallContext, m *Modules) error {
		trade, err := m.Market.ExecuteTrade(call, offerID, bidID)
		if err != nil {
			return err
		}
		out.Trade = trade
		if escrowExpiresIn == 0 {
			return nil
		}
		if call.Caller != trade.Buyer {
			return fmt.Errorf("%w: %w", market.ErrEscrowFailed, escrow.ErrInvalidParty)
		}
		id, err := m.Escrow.Initiate(call, escrow.InitiateParams{
			OfferID:     trade.OfferID,
			BidID:       trade.BidID,
			Amount:      trade.Amount,
			Price:       trade.Price,
			Currency:    trade.Currency,
			ExpiresIn:   escrowExpiresIn,
			TokenLockID: tokenLockID,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", market.ErrEscrowFailed, err)
		}
		out.EscrowID = id
		out.HasEscrow = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Receipt = receipt
	return out, nil
}
