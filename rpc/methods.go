package rpc

import (
	"context"
	"encoding/json"

	"energymarket/core"
	"energymarket/core/types"
)

type handlerFunc func(ctx context.Context, caller types.Principal, params []json.RawMessage) (interface{}, error)

func mutating(fn handlerFunc) method { return method{fn: fn, mutating: true} }

func query(fn handlerFunc) method { return method{fn: fn} }

func (s *Server) registerMethods() map[string]method {
	return map[string]method{
		"node_height": query(s.handleNodeHeight),

		"token_setMintAuthority":   mutating(s.handleTokenSetMintAuthority),
		"token_verifyProducer":     mutating(s.handleTokenVerifyProducer),
		"token_revokeProducer":     mutating(s.handleTokenRevokeProducer),
		"token_mint":               mutating(s.handleTokenMint),
		"token_burn":               mutating(s.handleTokenBurn),
		"token_transfer":           mutating(s.handleTokenTransfer),
		"token_lock":               mutating(s.handleTokenLock),
		"token_unlock":             mutating(s.handleTokenUnlock),
		"token_balance":            query(s.handleTokenBalance),
		"token_lockedBalance":      query(s.handleTokenLockedBalance),
		"token_totalSupply":        query(s.handleTokenTotalSupply),
		"token_mintHistory":        query(s.handleTokenMintHistory),
		"token_getLock":            query(s.handleTokenGetLock),
		"token_mintAuthority":      query(s.handleTokenMintAuthority),
		"token_isVerifiedProducer": query(s.handleTokenIsVerifiedProducer),

		"escrow_setDisputeAuthority": mutating(s.handleEscrowSetDisputeAuthority),
		"escrow_initiate":            mutating(s.handleEscrowInitiate),
		"escrow_release":             mutating(s.escrowAction("escrow.release", (*escrowEngine).Release)),
		"escrow_refund":              mutating(s.escrowAction("escrow.refund", (*escrowEngine).Refund)),
		"escrow_cancel":              mutating(s.escrowAction("escrow.cancel", (*escrowEngine).Cancel)),
		"escrow_raiseDispute":        mutating(s.escrowAction("escrow.raise_dispute", (*escrowEngine).RaiseDispute)),
		"escrow_resolveDispute":      mutating(s.handleEscrowResolveDispute),
		"escrow_get":                 query(s.handleEscrowGet),
		"escrow_disputeAuthority":    query(s.handleEscrowDisputeAuthority),

		"market_setAuthorityContract": mutating(s.handleMarketSetAuthorityContract),
		"market_setMaxOffers":         mutating(s.marketLimit("market.set_max_offers", (*marketEngine).SetMaxOffers)),
		"market_setMaxBids":           mutating(s.marketLimit("market.set_max_bids", (*marketEngine).SetMaxBids)),
		"market_setFee":               mutating(s.marketLimit("market.set_fee", (*marketEngine).SetMarketplaceFee)),
		"market_listOffer":            mutating(s.handleMarketListOffer),
		"market_createBid":            mutating(s.handleMarketCreateBid),
		"market_matchOrder":           mutating(s.handleMarketMatchOrder),
		"market_executeTrade":         mutating(s.handleMarketExecuteTrade),
		"market_cancelOffer":          mutating(s.handleMarketCancelOffer),
		"market_cancelBid":            mutating(s.handleMarketCancelBid),
		"market_getOffer":             query(s.handleMarketGetOffer),
		"market_getBid":               query(s.handleMarketGetBid),
		"market_params":               query(s.handleMarketParams),

		"bank_send":    mutating(s.handleBankSend),
		"bank_balance": query(s.handleBankBalance),
	}
}

// apply runs a mutating call and wraps its receipt.
func (s *Server) apply(ctx context.Context, caller types.Principal, label string, fn func(types.CallContext, *core.Modules) error) (*ReceiptResult, error) {
	receipt, err := s.node.Apply(ctx, caller, label, fn)
	if err != nil {
		return nil, err
	}
	return &ReceiptResult{Receipt: receipt}, nil
}

type heightResult struct {
	Height   uint64 `json:"height"`
	Sequence uint64 `json:"sequence"`
}

func (s *Server) handleNodeHeight(context.Context, types.Principal, []json.RawMessage) (interface{}, error) {
	return heightResult{Height: s.node.Height(), Sequence: s.node.Sequence()}, nil
}
