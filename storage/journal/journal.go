package journal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"energymarket/core/types"
)

var (
	bucketReceipts = []byte("receipts")

	// ErrOutOfOrder is returned when a receipt does not extend the journal.
	ErrOutOfOrder = errors.New("journal: receipt sequence out of order")
	// errStop ends a Range early without reporting an error.
	errStop = errors.New("journal: stop")
)

// Journal is an append-only log of committed receipts keyed by sequence.
type Journal struct {
	db *bolt.DB
}

// Open initialises (and migrates) the BoltDB-backed journal.
func Open(path string, options *bolt.Options) (*Journal, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketReceipts)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Close releases the underlying Bolt database handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func sequenceKey(seq uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], seq)
	return key[:]
}

// Append stores the receipt. Sequences must be strictly increasing.
func (j *Journal) Append(receipt *types.Receipt) error {
	if receipt == nil {
		return fmt.Errorf("journal: nil receipt")
	}
	payload, err := json.Marshal(receipt)
	if err != nil {
		return err
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketReceipts)
		if last, _ := bucket.Cursor().Last(); last != nil && binary.BigEndian.Uint64(last) >= receipt.Sequence {
			return fmt.Errorf("%w: %d after %d", ErrOutOfOrder, receipt.Sequence, binary.BigEndian.Uint64(last))
		}
		return bucket.Put(sequenceKey(receipt.Sequence), payload)
	})
}

// HandleReceipt lets the journal act as a node receipt sink.
func (j *Journal) HandleReceipt(receipt *types.Receipt) error {
	return j.Append(receipt)
}

// Last returns the highest stored sequence, or zero for an empty journal.
func (j *Journal) Last() (uint64, error) {
	var seq uint64
	err := j.db.View(func(tx *bolt.Tx) error {
		if last, _ := tx.Bucket(bucketReceipts).Cursor().Last(); last != nil {
			seq = binary.BigEndian.Uint64(last)
		}
		return nil
	})
	return seq, err
}

// Get returns the receipt stored under seq.
func (j *Journal) Get(seq uint64) (*types.Receipt, bool, error) {
	var receipt *types.Receipt
	err := j.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketReceipts).Get(sequenceKey(seq))
		if raw == nil {
			return nil
		}
		receipt = new(types.Receipt)
		return json.Unmarshal(raw, receipt)
	})
	if err != nil {
		return nil, false, err
	}
	return receipt, receipt != nil, nil
}

// Range replays receipts with sequence >= from in order. Returning false from
// fn stops the replay.
func (j *Journal) Range(from uint64, fn func(*types.Receipt) bool) error {
	err := j.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketReceipts).Cursor()
		for k, v := cursor.Seek(sequenceKey(from)); k != nil; k, v = cursor.Next() {
			receipt := new(types.Receipt)
			if err := json.Unmarshal(v, receipt); err != nil {
				return fmt.Errorf("journal: decode receipt %d: %w", binary.BigEndian.Uint64(k), err)
			}
			if !fn(receipt) {
				return errStop
			}
		}
		return nil
	})
	if errors.Is(err, errStop) {
		return nil
	}
	return err
}
