package rpc

import (
	"context"
	"encoding/json"
	"math/big"

	"energymarket/core"
	"energymarket/core/types"
	"energymarket/native/escrow"
)

type escrowEngine = escrow.Engine

type escrowInitiateParams struct {
	OfferID     string  `json:"offerId"`
	BidID       string  `json:"bidId"`
	Amount      string  `json:"amount"`
	Price       string  `json:"price"`
	Currency    string  `json:"currency"`
	ExpiresIn   uint64  `json:"expiresIn"`
	TokenLockID *string `json:"tokenLockId,omitempty"`
}

type escrowIDParams struct {
	ID string `json:"id"`
}

type escrowResolveParams struct {
	ID                string `json:"id"`
	ReleaseToProducer bool   `json:"releaseToProducer"`
}

func (s *Server) handleEscrowSetDisputeAuthority(ctx context.Context, caller types.Principal, params []json.RawMessage) (interface{}, error) {
	authority, err := s.principalParam(params)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, caller, "escrow.set_dispute_authority", func(call types.CallContext, m *core.Modules) error {
		return m.Escrow.SetDisputeAuthority(call, authority)
	})
}

func (s *Server) handleEscrowInitiate(ctx context.Context, caller types.Principal, params []json.RawMessage) (interface{}, error) {
	var p escrowInitiateParams
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
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	price, err := parseAmount("price", p.Price)
	if err != nil {
		return nil, err
	}
	currency, err := parseCurrency(p.Currency)
	if err != nil {
		return nil, err
	}
	lockID, err := optionalID("tokenLockId", p.TokenLockID)
	if err != nil {
		return nil, err
	}
	initiate := escrow.InitiateParams{
		OfferID:     offerID,
		BidID:       bidID,
		Amount:      amount,
		Price:       price,
		Currency:    currency,
		ExpiresIn:   p.ExpiresIn,
		TokenLockID: lockID,
	}
	var escrowID uint64
	result, err := s.apply(ctx, caller, "escrow.initiate", func(call types.CallContext, m *core.Modules) error {
		id, err := m.Escrow.Initiate(call, initiate)
		escrowID = id
		return err
	})
	if err != nil {
		return nil, err
	}
	result.ID = formatID(escrowID)
	return result, nil
}

func optionalID(field string, raw *string) (*uint64, error) {
	if raw == nil {
		return nil, nil
	}
	id, err := parseID(field, *raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// escrowAction adapts the single-id escrow transitions.
func (s *Server) escrowAction(label string, action func(*escrowEngine, types.CallContext, uint64) error) handlerFunc {
	return func(ctx context.Context, caller types.Principal, params []json.RawMessage) (interface{}, error) {
		var p escrowIDParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		id, err := parseID("id", p.ID)
		if err != nil {
			return nil, err
		}
		return s.apply(ctx, caller, label, func(call types.CallContext, m *core.Modules) error {
			return action(m.Escrow, call, id)
		})
	}
}

func (s *Server) handleEscrowResolveDispute(ctx context.Context, caller types.Principal, params []json.RawMessage) (interface{}, error) {
	var p escrowResolveParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	id, err := parseID("id", p.ID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, caller, "escrow.resolve_dispute", func(call types.CallContext, m *core.Modules) error {
		return m.Escrow.ResolveDispute(call, id, p.ReleaseToProducer)
	})
}

func (s *Server) handleEscrowGet(_ context.Context, _ types.Principal, params []json.RawMessage) (interface{}, error) {
	var p escrowIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	id, err := parseID("id", p.ID)
	if err != nil {
		return nil, err
	}
	var result *EscrowJSON
	err = s.node.View(func(_ types.CallContext, m *core.Modules) error {
		record, ok, err := m.Escrow.Escrow(id)
		if err != nil || !ok {
			return err
		}
		balance, _, err := m.Escrow.Balance(id)
		if err != nil {
			return err
		}
		if balance == nil {
			balance = big.NewInt(0)
		}
		out := escrowJSON(record, balance)
		result = &out
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: "escrow not found", Data: p.ID}
	}
	return result, nil
}

func (s *Server) handleEscrowDisputeAuthority(context.Context, types.Principal, []json.RawMessage) (interface{}, error) {
	var result authorityResult
	err := s.node.View(func(_ types.CallContext, m *core.Modules) error {
		authority, ok, err := m.Escrow.DisputeAuthority()
		if err != nil {
			return err
		}
		result = authorityResult{Authority: authority.String(), Set: ok}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
