package storage

import (
	"bytes"
	"errors"
	"sync"
)

// ErrTxClosed is returned when a transaction is used after Commit or Discard.
var ErrTxClosed = errors.New("storage: transaction closed")

// Tx buffers writes on top of a base database. Reads see the pending writes
// first. Nothing reaches the base store until Commit, which applies every
// pending write in one batch; Discard drops them.
type Tx struct {
	mu      sync.Mutex
	base    Database
	pending map[string][]byte
	closed  bool
}

// NewTx opens a transaction over the provided database.
func NewTx(base Database) *Tx {
	return &Tx{base: base, pending: make(map[string][]byte)}
}

// Get returns the value for key, preferring pending writes. A pending delete
// reports ErrNotFound.
func (tx *Tx) Get(key []byte) ([]byte, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.closed {
		return nil, ErrTxClosed
	}
	if value, ok := tx.pending[string(key)]; ok {
		if value == nil {
			return nil, ErrNotFound
		}
		return bytes.Clone(value), nil
	}
	return tx.base.Get(key)
}

// Has reports whether key exists in the pending set or the base store.
func (tx *Tx) Has(key []byte) (bool, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.closed {
		return false, ErrTxClosed
	}
	if value, ok := tx.pending[string(key)]; ok {
		return value != nil, nil
	}
	return tx.base.Has(key)
}

// Put stages a write.
func (tx *Tx) Put(key, value []byte) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.closed {
		return ErrTxClosed
	}
	// A nil pending value marks a delete, so empty writes stay non-nil.
	if value == nil {
		value = []byte{}
	}
	tx.pending[string(key)] = bytes.Clone(value)
	return nil
}

// Delete stages a removal.
func (tx *Tx) Delete(key []byte) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.closed {
		return ErrTxClosed
	}
	tx.pending[string(key)] = nil
	return nil
}

// Pending reports the number of staged writes.
func (tx *Tx) Pending() int {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return len(tx.pending)
}

// Commit applies the staged writes atomically and closes the transaction.
func (tx *Tx) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true
	if len(tx.pending) == 0 {
		return nil
	}
	batch := tx.pending
	tx.pending = nil
	return tx.base.Write(batch)
}

// Discard drops the staged writes. Calling Discard on a closed transaction is
// a no-op so it can be deferred unconditionally.
func (tx *Tx) Discard() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.closed = true
	tx.pending = nil
}
