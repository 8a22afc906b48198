package state

import (
	"fmt"
	"math/big"
	"sort"

	"energymarket/core/types"
	"energymarket/native/token"
)

// TokenRegistry returns the ledger registry, defaulting to an empty one.
func (m *Manager) TokenRegistry() (*token.Registry, error) {
	reg := new(token.Registry)
	if _, err := m.KVGet(tokenRegistryKeyBytes, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func (m *Manager) TokenPutRegistry(reg *token.Registry) error {
	if reg == nil {
		return fmt.Errorf("token: registry must not be nil")
	}
	return m.KVPut(tokenRegistryKeyBytes, reg)
}

func (m *Manager) TokenBalance(owner types.Principal) (*big.Int, error) {
	balance, _, err := m.getBig(principalKey(tokenBalancePrefix, owner))
	return balance, err
}

func (m *Manager) TokenSetBalance(owner types.Principal, amount *big.Int) error {
	return m.putBig(principalKey(tokenBalancePrefix, owner), amount)
}

func (m *Manager) TokenSupply() (*big.Int, error) {
	supply, _, err := m.getBig(tokenSupplyKeyBytes)
	return supply, err
}

func (m *Manager) TokenSetSupply(total *big.Int) error {
	return m.putBig(tokenSupplyKeyBytes, total)
}

func (m *Manager) TokenProducerVerified(producer types.Principal) (bool, error) {
	var verified bool
	if _, err := m.KVGet(principalKey(tokenProducerPrefix, producer), &verified); err != nil {
		return false, err
	}
	return verified, nil
}

func (m *Manager) TokenSetProducerVerified(producer types.Principal, verified bool) error {
	key := principalKey(tokenProducerPrefix, producer)
	if !verified {
		return m.KVDelete(key)
	}
	return m.KVPut(key, true)
}

func (m *Manager) TokenMintHistory(producer types.Principal) (*big.Int, error) {
	minted, _, err := m.getBig(principalKey(tokenMintHistoryPrefix, producer))
	return minted, err
}

func (m *Manager) TokenSetMintHistory(producer types.Principal, minted *big.Int) error {
	return m.putBig(principalKey(tokenMintHistoryPrefix, producer), minted)
}

// TokenLockPut stores the lock and records its id in the owner's index.
func (m *Manager) TokenLockPut(lock *token.Lock) error {
	if lock == nil {
		return fmt.Errorf("token: lock must not be nil")
	}
	if lock.Owner.IsZero() {
		return fmt.Errorf("token: lock owner must not be empty")
	}
	stored := lock.Clone()
	if stored.Amount == nil {
		stored.Amount = big.NewInt(0)
	}
	if err := m.KVPut(idKey(tokenLockPrefix, lock.ID), stored); err != nil {
		return err
	}
	ids, err := m.ownerLockIDs(lock.Owner)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == lock.ID {
			return nil
		}
	}
	ids = append(ids, lock.ID)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return m.KVPut(principalKey(tokenOwnerLockIndexPrefix, lock.Owner), ids)
}

func (m *Manager) TokenLockGet(id uint64) (*token.Lock, bool, error) {
	lock := new(token.Lock)
	ok, err := m.KVGet(idKey(tokenLockPrefix, id), lock)
	if err != nil || !ok {
		return nil, false, err
	}
	return lock, true, nil
}

// TokenLockDelete removes the lock and drops it from the owner's index.
// Deleting an unknown lock is a no-op.
func (m *Manager) TokenLockDelete(id uint64) error {
	lock, ok, err := m.TokenLockGet(id)
	if err != nil || !ok {
		return err
	}
	if err := m.KVDelete(idKey(tokenLockPrefix, id)); err != nil {
		return err
	}
	ids, err := m.ownerLockIDs(lock.Owner)
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	key := principalKey(tokenOwnerLockIndexPrefix, lock.Owner)
	if len(kept) == 0 {
		return m.KVDelete(key)
	}
	return m.KVPut(key, kept)
}

// TokenLocksByOwner returns the owner's live locks ordered by id.
func (m *Manager) TokenLocksByOwner(owner types.Principal) ([]*token.Lock, error) {
	ids, err := m.ownerLockIDs(owner)
	if err != nil {
		return nil, err
	}
	locks := make([]*token.Lock, 0, len(ids))
	for _, id := range ids {
		lock, ok, err := m.TokenLockGet(id)
		if err != nil {
			return nil, err
		}
		if ok {
			locks = append(locks, lock)
		}
	}
	return locks, nil
}

func (m *Manager) ownerLockIDs(owner types.Principal) ([]uint64, error) {
	var ids []uint64
	if err := m.KVGetList(principalKey(tokenOwnerLockIndexPrefix, owner), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
