package state

import (
	"fmt"
	"math/big"

	"energymarket/native/escrow"
)

func (m *Manager) EscrowRegistry() (*escrow.Registry, error) {
	reg := new(escrow.Registry)
	if _, err := m.KVGet(escrowRegistryKeyBytes, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func (m *Manager) EscrowPutRegistry(reg *escrow.Registry) error {
	if reg == nil {
		return fmt.Errorf("escrow: registry must not be nil")
	}
	return m.KVPut(escrowRegistryKeyBytes, reg)
}

// EscrowPut stores a sanitized copy of the escrow record.
func (m *Manager) EscrowPut(e *escrow.Escrow) error {
	sanitized, err := escrow.SanitizeEscrow(e)
	if err != nil {
		return err
	}
	return m.KVPut(idKey(escrowRecordPrefix, sanitized.ID), sanitized)
}

func (m *Manager) EscrowGet(id uint64) (*escrow.Escrow, bool, error) {
	record := new(escrow.Escrow)
	ok, err := m.KVGet(idKey(escrowRecordPrefix, id), record)
	if err != nil || !ok {
		return nil, false, err
	}
	return record, true, nil
}

// EscrowBalance reports the custodial balance held for an escrow. A balance
// entry exists only while the escrow is active, so presence is tracked
// separately from the amount.
func (m *Manager) EscrowBalance(id uint64) (*big.Int, bool, error) {
	return m.getBig(idKey(escrowBalancePrefix, id))
}

func (m *Manager) EscrowSetBalance(id uint64, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errNegativeAmount
	}
	return m.KVPut(idKey(escrowBalancePrefix, id), new(big.Int).Set(amount))
}

func (m *Manager) EscrowDeleteBalance(id uint64) error {
	return m.KVDelete(idKey(escrowBalancePrefix, id))
}
