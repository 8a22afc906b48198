package state

import (
	"errors"
	"math/big"
)

var errNegativeAmount = errors.New("state: amount must not be negative")

func (m *Manager) getBig(key []byte) (*big.Int, bool, error) {
	value := new(big.Int)
	ok, err := m.KVGet(key, value)
	if err != nil || !ok {
		return big.NewInt(0), ok, err
	}
	return value, true, nil
}

// putBig stores a non-negative amount. Zero clears the key.
func (m *Manager) putBig(key []byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return m.KVDelete(key)
	}
	if amount.Sign() < 0 {
		return errNegativeAmount
	}
	return m.KVPut(key, new(big.Int).Set(amount))
}
