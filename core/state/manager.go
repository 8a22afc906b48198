package state

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"energymarket/storage"
)

// Manager is the module state store. Writes are buffered in an overlay that is
// either committed to the database as one batch or discarded, so a failed
// operation leaves no trace in persistent state.
type Manager struct {
	db      storage.Database
	pending map[string][]byte
	deleted map[string]struct{}
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		pending: make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) get(key []byte) ([]byte, error) {
	hashed := string(kvKey(key))
	if _, ok := m.deleted[hashed]; ok {
		return nil, nil
	}
	if value, ok := m.pending[hashed]; ok {
		return value, nil
	}
	value, err := m.db.Get([]byte(hashed))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

func (m *Manager) put(key []byte, value []byte) {
	hashed := string(kvKey(key))
	delete(m.deleted, hashed)
	m.pending[hashed] = append([]byte(nil), value...)
}

func (m *Manager) del(key []byte) {
	hashed := string(kvKey(key))
	delete(m.pending, hashed)
	m.deleted[hashed] = struct{}{}
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.put(key, encoded)
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.del(key)
	return nil
}

// KVGetList retrieves an RLP-encoded slice stored under the provided key and
// decodes it into the supplied destination slice pointer. When no value is
// present the destination is initialised with an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	found, err := m.KVGet(key, out)
	if err != nil || found {
		return err
	}
	val := reflect.ValueOf(out)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("kv: destination must be a non-nil pointer")
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Slice {
		return fmt.Errorf("kv: destination must point to a slice")
	}
	elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
	return nil
}

// Dirty reports the number of buffered writes and deletes.
func (m *Manager) Dirty() int {
	return len(m.pending) + len(m.deleted)
}

// Commit writes the overlay to the database as a single batch and clears it.
// Keys are written in sorted order so identical overlays produce identical
// batches.
func (m *Manager) Commit() error {
	if m.Dirty() == 0 {
		return nil
	}
	keys := make([]string, 0, m.Dirty())
	for k := range m.pending {
		keys = append(keys, k)
	}
	for k := range m.deleted {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := m.db.NewBatch()
	for _, k := range keys {
		if value, ok := m.pending[k]; ok {
			batch.Put([]byte(k), value)
			continue
		}
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.reset()
	return nil
}

// Rollback discards every buffered write.
func (m *Manager) Rollback() {
	m.reset()
}

func (m *Manager) reset() {
	m.pending = make(map[string][]byte)
	m.deleted = make(map[string]struct{})
}
