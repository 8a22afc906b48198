package rpc

import (
	"context"
	"encoding/json"

	"energymarket/core"
	"energymarket/core/types"
	"energymarket/native/market"
)

type marketEngine = market.Engine

type marketLimitParams struct {
	Value uint64 `json:"value"`
}

type marketOfferParams struct {
	Amount     string `json:"amount"`
	Price      string `json:"price"`
	EnergyType string `json:"energyType"`
	Location   string `json:"location"`
	Expiry     uint64 `json:"expiry"`
	Currency   string `json:"currency"`
}

type marketBidParams struct {
	Amount            string `json:"amount"`
	MaxPrice          string `json:"maxPrice"`
	PreferredType     string `json:"preferredType"`
	PreferredLocation string `json:"preferredLocation"`
	Expiry            uint64 `json:"expiry"`
	Currency          string `json:"currency"`
}

type marketPairParams struct {
	OfferID string `json:"offerId"`
	BidID   string `json:"bidId"`
}

type marketExecuteParams struct {
	OfferID         string  `json:"offerId"`
	BidID           string  `json:"bidId"`
	EscrowExpiresIn uint64  `json:"escrowExpiresIn"`
	TokenLockID     *string `json:"tokenLockId,omitempty"`
}

type marketIDParams struct {
	ID string `json:"id"`
}

type settlementResult struct {
	Receipt  *types.Receipt `json:"receipt"`
	Trade    TradeJSON      `json:"trade"`
	EscrowID *string        `json:"escrowId,omitempty"`
}

func (s *Server) handleMarketSetAuthorityContract(ctx context.Context, caller types.Principal, params []json.RawMessage) (interface{}, error) {
	authority, err := s.principalParam(params)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, caller, "market.set_authority_contract", func(call types.CallContext, m *core.Modules) error {
		return m.Market.SetAuthorityContract(call, authority)
	})
}

// marketLimit adapts the authority-only numeric setters.
func (s *Server) marketLimit(label string, set func(*marketEngine, types.CallContext, uint64) error) handlerFunc {
	return func(ctx context.Context, caller types.Principal, params []json.RawMessage) (interface{}, error) {
		var p marketLimitParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return s.apply(ctx, caller, label, func(call types.CallContext, m *core.Modules) error {
			return set(m.Market, call, p.Value)
		})
	}
}

func (s *Server) handleMarketListOffer(ctx context.Context, caller types.Principal, params []json.RawMessage) (interface{}, error) {
	var p marketOfferParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	price, err := parseAmount("price", p.Price)
	if err != nil {
		return nil, err
	}
	energyType, err := market.ParseEnergyType(p.EnergyType)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	currency, err := parseCurrency(p.Currency)
	if err != nil {
		return nil, err
	}
	offer := market.OfferParams{
		Amount:     amount,
		Price:      price,
		EnergyType: energyType,
		Location:   p.Location,
		Expiry:     p.Expiry,
		Currency:   currency,
	}
	var offerID uint64
	result, err := s.apply(ctx, caller, "market.list_offer", func(call types.CallContext, m *core.Modules) error {
		id, err := m.Market.ListOffer(call, offer)
		offerID = id
		return err
	})
	if err != nil {
		return nil, err
	}
	result.ID = formatID(offerID)
	return result, nil
}

func (s *Server) handleMarketCreateBid(ctx context.Context, caller types.Principal, params []json.RawMessage) (interface{}, error) {
	var p marketBidParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	maxPrice, err := parseAmount("maxPrice", p.MaxPrice)
	if err != nil {
		return nil, err
	}
	preferred, err := market.ParseEnergyType(p.PreferredType)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	currency, err := parseCurrency(p.Currency)
	if err != nil {
		return nil, err
	}
	bid := market.BidParams{
		Amount:            amount,
		MaxPrice:          maxPrice,
		PreferredType:     preferred,
		PreferredLocation: p.PreferredLocation,
		Expiry:            p.Expiry,
		Currency:          currency,
	}
	var bidID uint64
	result, err := s.apply(ctx, caller, "market.create_bid", func(call types.CallContext, m *core.Modules) error {
		id, err := m.Market.CreateBid(call, bid)
		bidID = id
		return err
	})
	if err != nil {
		return nil, err
	}
	result.ID = formatID(bidID)
	return result, nil
}

func parsePair(params []json.RawMessage) (uint64, uint64, error) {
	var p marketPairParams
	if err := decodeParams(params, &p); err != nil {
		return 0, 0, err
	}
	offerID, err := parseID("offerId", p.OfferID)
	if err != nil {
		return 0, 0, err
	}
	bidID, err := parseID("bidId", p.BidID)
	if err != nil {
		return 0, 0, err
	}
	return offerID, bidID, nil
}

func (s *Server) handleMarketMatchOrder(ctx context.Context, caller types.Principal, params []json.RawMessage) (interface{}, error) {
	offerID, bidID, err := parsePair(params)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, caller, "market.match_order", func(call types.CallContext, m *core.Modules) error {
		return m.Market.MatchOrder(call, offerID, bidID)
	})
}

func (s *Server) handleMarketExecuteTrade(ctx context.Context, caller types.Principal, params []json.RawMessage) (interface{}, error) {
	var p marketExecuteParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	offerID, err := parseID("offerId", p.OfferID)
	if err != nil {
		return nil, err
	}
	bidID, err := parseID("bidId", p.BidID)
	if err != nil {
		return nil, err
	}
	lockID, err := optionalID("tokenLockId", p.TokenLockID)
	if err != nil {
		return nil, err
	}
	settlement, err := s.node.ExecuteTrade(ctx, caller, offerID, bidID, p.EscrowExpiresIn, lockID)
	if err != nil {
		return nil, err
	}
	result := settlementResult{Receipt: settlement.Receipt, Trade: tradeJSON(settlement.Trade)}
	if settlement.HasEscrow {
		id := formatID(settlement.EscrowID)
		result.EscrowID = &id
	}
	return result, nil
}

func (s *Server) handleMarketCancelOffer(ctx context.Context, caller types.Principal, params []json.RawMessage) (interface{}, error) {
	id, err := parseMarketID(params)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, caller, "market.cancel_offer", func(call types.CallContext, m *core.Modules) error {
		return m.Market.CancelOffer(call, id)
	})
}

func (s *Server) handleMarketCancelBid(ctx context.Context, caller types.Principal, params []json.RawMessage) (interface{}, error) {
	id, err := parseMarketID(params)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, caller, "market.cancel_bid", func(call types.CallContext, m *core.Modules) error {
		return m.Market.CancelBid(call, id)
	})
}

func parseMarketID(params []json.RawMessage) (uint64, error) {
	var p marketIDParams
	if err := decodeParams(params, &p); err != nil {
		return 0, err
	}
	return parseID("id", p.ID)
}

func (s *Server) handleMarketGetOffer(_ context.Context, _ types.Principal, params []json.RawMessage) (interface{}, error) {
	id, err := parseMarketID(params)
	if err != nil {
		return nil, err
	}
	var result *OfferJSON
	err = s.node.View(func(_ types.CallContext, m *core.Modules) error {
		offer, ok, err := m.Market.Offer(id)
		if err != nil || !ok {
			return err
		}
		out := offerJSON(offer)
		if bidID, matched, err := m.Market.OfferMatch(id); err != nil {
			return err
		} else if matched {
			formatted := formatID(bidID)
			out.MatchedBid = &formatted
		}
		result = &out
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: "offer not found", Data: formatID(id)}
	}
	return result, nil
}

func (s *Server) handleMarketGetBid(_ context.Context, _ types.Principal, params []json.RawMessage) (interface{}, error) {
	id, err := parseMarketID(params)
	if err != nil {
		return nil, err
	}
	var result *BidJSON
	err = s.node.View(func(_ types.CallContext, m *core.Modules) error {
		bid, ok, err := m.Market.Bid(id)
		if err != nil || !ok {
			return err
		}
		out := bidJSON(bid)
		if offerID, matched, err := m.Market.BidMatch(id); err != nil {
			return err
		} else if matched {
			formatted := formatID(offerID)
			out.MatchedOffer = &formatted
		}
		result = &out
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: "bid not found", Data: formatID(id)}
	}
	return result, nil
}

func (s *Server) handleMarketParams(context.Context, types.Principal, []json.RawMessage) (interface{}, error) {
	var result ParamsJSON
	err := s.node.View(func(_ types.CallContext, m *core.Modules) error {
		params, err := m.Market.Params()
		if err != nil {
			return err
		}
		result = paramsJSON(params)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
