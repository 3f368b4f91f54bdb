package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"nexum/storage"
)

// Store is the key/value backend the manager persists into. Both the
// databases in package storage and the write overlay storage.Tx satisfy it.
type Store interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Manager provides typed access to protocol state on top of a Store.
type Manager struct {
	store Store
}

// NewManager creates a state manager operating on the provided store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func prefixedKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part) + 1
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for i, part := range parts {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, part...)
	}
	return buf
}

func (m *Manager) read(hashed []byte) ([]byte, error) {
	if m == nil || m.store == nil {
		return nil, fmt.Errorf("state: store not configured")
	}
	data, err := m.store.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (m *Manager) write(hashed, data []byte) error {
	if m == nil || m.store == nil {
		return fmt.Errorf("state: store not configured")
	}
	return m.store.Put(hashed, data)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the store.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.write(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.read(kvKey(key))
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
	if m == nil || m.store == nil {
		return fmt.Errorf("state: store not configured")
	}
	return m.store.Delete(kvKey(key))
}

// KVGetList retrieves an RLP-encoded slice stored under the provided key and
// decodes it into the supplied destination slice pointer. When no value is
// present the destination is initialised with an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.read(kvKey(key))
	if err != nil {
		return err
	}
	if len(data) == 0 {
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
	return rlp.DecodeBytes(data, out)
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// SetBalance stores an account balance for the provided asset.
func (m *Manager) SetBalance(addr [20]byte, symbol string, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("negative balance not allowed")
	}
	normalized := normalizeSymbol(symbol)
	if normalized == "" {
		return fmt.Errorf("asset symbol must not be empty")
	}
	key := prefixedKey(balancePrefix, []byte(normalized), addr[:])
	if amount.Sign() == 0 {
		return m.KVDelete(key)
	}
	return m.KVPut(key, amount)
}

// Balance retrieves the balance of addr for the provided asset.
func (m *Manager) Balance(addr [20]byte, symbol string) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.KVGet(prefixedKey(balancePrefix, []byte(normalizeSymbol(symbol)), addr[:]), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// SetPaused records the circuit-breaker flag for module.
func (m *Manager) SetPaused(module string, paused bool) error {
	module = strings.TrimSpace(module)
	if module == "" {
		return fmt.Errorf("module must not be empty")
	}
	key := prefixedKey(pausePrefix, []byte(module))
	if !paused {
		return m.KVDelete(key)
	}
	return m.KVPut(key, true)
}

// IsPaused reports whether module is paused. Read errors are treated as
// paused so a damaged store fails closed.
func (m *Manager) IsPaused(module string) bool {
	var paused bool
	ok, err := m.KVGet(prefixedKey(pausePrefix, []byte(strings.TrimSpace(module))), &paused)
	if err != nil {
		return true
	}
	return ok && paused
}

func encodeUint64(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

func getIDList(m *Manager, key []byte) ([]uint64, error) {
	var ids []uint64
	if err := m.KVGetList(key, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func putIDList(m *Manager, key []byte, ids []uint64) error {
	if len(ids) == 0 {
		return m.KVDelete(key)
	}
	return m.KVPut(key, ids)
}
