package rpc

import (
	"context"
	"encoding/json"
	"math/big"

	"energymarket/core"
	"energymarket/core/types"
)

type tokenPrincipalParams struct {
	Principal string `json:"principal"`
}

type tokenAmountParams struct {
	Amount string `json:"amount"`
}

type tokenMintParams struct {
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
}

type tokenTransferParams struct {
	Amount    string `json:"amount"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
}

type tokenLockParams struct {
	Amount string `json:"amount"`
	Expiry uint64 `json:"expiry"`
}

type tokenLockIDParams struct {
	ID string `json:"id"`
}

type authorityResult struct {
	Authority string `json:"authority,omitempty"`
	Set       bool   `json:"set"`
}

func (s *Server) principalParam(params []json.RawMessage) (types.Principal, error) {
	var p tokenPrincipalParams
	if err := decodeParams(params, &p); err != nil {
		return "", err
	}
	return parsePrincipal("principal", p.Principal)
}

func (s *Server) handleTokenSetMintAuthority(ctx context.Context, caller types.Principal, params []json.RawMessage) (interface{}, error) {
	authority, err := s.principalParam(params)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, caller, "token.set_mint_authority", func(call types.CallContext, m *core.Modules) error {
		return m.Token.SetMintAuthority(call, authority)
	})
}

func (s *Server) handleTokenVerifyProducer(ctx context.Context, caller types.Principal, params []json.RawMessage) (interface{}, error) {
	producer, err := s.principalParam(params)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, caller, "token.verify_producer", func(call types.CallContext, m *core.Modules) error {
		return m.Token.VerifyProducer(call, producer)
	})
}

func (s *Server) handleTokenRevokeProducer(ctx context.Context, caller types.Principal, params []json.RawMessage) (interface{}, error) {
	producer, err := s.principalParam(params)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, caller, "token.revoke_producer", func(call types.CallContext, m *core.Modules) error {
		return m.Token.RevokeProducer(call, producer)
	})
}

func (s *Server) handleTokenMint(ctx context.Context, caller types.Principal, params []json.RawMessage) (interface{}, error) {
	var p tokenMintParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	recipient, err := parsePrincipal("recipient", p.Recipient)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, caller, "token.mint", func(call types.CallContext, m *core.Modules) error {
		return m.Token.Mint(call, amount, recipient)
	})
}

func (s *Server) handleTokenBurn(ctx context.Context, caller types.Principal, params []json.RawMessage) (interface{}, error) {
	var p tokenAmountParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, caller, "token.burn", func(call types.CallContext, m *core.Modules) error {
		return m.Token.Burn(call, amount)
	})
}

func (s *Server) handleTokenTransfer(ctx context.Context, caller types.Principal, params []json.RawMessage) (interface{}, error) {
	var p tokenTransferParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	sender := caller
	if p.Sender != "" {
		if sender, err = parsePrincipal("sender", p.Sender); err != nil {
			return nil, err
		}
	}
	recipient, err := parsePrincipal("recipient", p.Recipient)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, caller, "token.transfer", func(call types.CallContext, m *core.Modules) error {
		return m.Token.Transfer(call, amount, sender, recipient)
	})
}

func (s *Server) handleTokenLock(ctx context.Context, caller types.Principal, params []json.RawMessage) (interface{}, error) {
	var p tokenLockParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	var lockID uint64
	result, err := s.apply(ctx, caller, "token.lock", func(call types.CallContext, m *core.Modules) error {
		id, err := m.Token.LockTokens(call, amount, p.Expiry)
		lockID = id
		return err
	})
	if err != nil {
		return nil, err
	}
	result.ID = formatID(lockID)
	return result, nil
}

func (s *Server) handleTokenUnlock(ctx context.Context, caller types.Principal, params []json.RawMessage) (interface{}, error) {
	var p tokenLockIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	id, err := parseID("id", p.ID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, caller, "token.unlock", func(call types.CallContext, m *core.Modules) error {
		return m.Token.UnlockTokens(call, id)
	})
}

func (s *Server) handleTokenBalance(_ context.Context, _ types.Principal, params []json.RawMessage) (interface{}, error) {
	owner, err := s.principalParam(params)
	if err != nil {
		return nil, err
	}
	var balance *big.Int
	err = s.node.View(func(_ types.CallContext, m *core.Modules) error {
		var err error
		balance, err = m.Token.Balance(owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return BalanceResult{Owner: owner.String(), Balance: formatAmount(balance)}, nil
}

func (s *Server) handleTokenLockedBalance(_ context.Context, _ types.Principal, params []json.RawMessage) (interface{}, error) {
	owner, err := s.principalParam(params)
	if err != nil {
		return nil, err
	}
	var locked *big.Int
	err = s.node.View(func(call types.CallContext, m *core.Modules) error {
		var err error
		locked, err = m.Token.LockedBalance(call, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return BalanceResult{Owner: owner.String(), Balance: formatAmount(locked)}, nil
}

func (s *Server) handleTokenTotalSupply(context.Context, types.Principal, []json.RawMessage) (interface{}, error) {
	var supply, limit *big.Int
	err := s.node.View(func(_ types.CallContext, m *core.Modules) error {
		var err error
		supply, err = m.Token.TotalSupply()
		limit = m.Token.SupplyCap()
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]string{"totalSupply": formatAmount(supply), "supplyCap": formatAmount(limit)}, nil
}

func (s *Server) handleTokenMintHistory(_ context.Context, _ types.Principal, params []json.RawMessage) (interface{}, error) {
	producer, err := s.principalParam(params)
	if err != nil {
		return nil, err
	}
	var minted *big.Int
	err = s.node.View(func(_ types.CallContext, m *core.Modules) error {
		var err error
		minted, err = m.Token.MintHistory(producer)
		return err
	})
	if err != nil {
		return nil, err
	}
	return BalanceResult{Owner: producer.String(), Balance: formatAmount(minted)}, nil
}

func (s *Server) handleTokenGetLock(_ context.Context, _ types.Principal, params []json.RawMessage) (interface{}, error) {
	var p tokenLockIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	id, err := parseID("id", p.ID)
	if err != nil {
		return nil, err
	}
	var result *LockJSON
	err = s.node.View(func(_ types.CallContext, m *core.Modules) error {
		lock, ok, err := m.Token.Lock(id)
		if err != nil || !ok {
			return err
		}
		out := lockJSON(lock)
		result = &out
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: "lock not found", Data: p.ID}
	}
	return result, nil
}

func (s *Server) handleTokenMintAuthority(context.Context, types.Principal, []json.RawMessage) (interface{}, error) {
	var result authorityResult
	err := s.node.View(func(_ types.CallContext, m *core.Modules) error {
		authority, ok, err := m.Token.MintAuthority()
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

func (s *Server) handleTokenIsVerifiedProducer(_ context.Context, _ types.Principal, params []json.RawMessage) (interface{}, error) {
	producer, err := s.principalParam(params)
	if err != nil {
		return nil, err
	}
	var verified bool
	err = s.node.View(func(_ types.CallContext, m *core.Modules) error {
		var err error
		verified, err = m.Token.IsVerifiedProducer(producer)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"producer": producer.String(), "verified": verified}, nil
}
