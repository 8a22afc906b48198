package state

import (
	"math/big"

	"energymarket/core/types"
)

// BankBalance returns the native STX balance of addr.
func (m *Manager) BankBalance(addr types.Principal) (*big.Int, error) {
	balance, _, err := m.getBig(principalKey(bankBalancePrefix, addr))
	return balance, err
}

func (m *Manager) BankSetBalance(addr types.Principal, amount *big.Int) error {
	return m.putBig(principalKey(bankBalancePrefix, addr), amount)
}
