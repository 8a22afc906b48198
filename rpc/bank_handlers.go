package rpc

import (
	"context"
	"encoding/json"
	"math/big"

	"energymarket/core"
	"energymarket/core/types"
)

type bankSendParams struct {
	Amount string `json:"amount"`
	To     string `json:"to"`
}

func (s *Server) handleBankSend(ctx context.Context, caller types.Principal, params []json.RawMessage) (interface{}, error) {
	var p bankSendParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	to, err := parsePrincipal("to", p.To)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, caller, "bank.send", func(call types.CallContext, m *core.Modules) error {
		return m.Bank.Send(call, amount, to)
	})
}

func (s *Server) handleBankBalance(_ context.Context, _ types.Principal, params []json.RawMessage) (interface{}, error) {
	owner, err := s.principalParam(params)
	if err != nil {
		return nil, err
	}
	var balance *big.Int
	err = s.node.View(func(_ types.CallContext, m *core.Modules) error {
		var err error
		balance, err = m.Bank.Balance(owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return BalanceResult{Owner: owner.String(), Balance: formatAmount(balance)}, nil
}
