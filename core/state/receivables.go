package state

import (
	"fmt"
	"math/big"

	"nexum/native/receivables"
)

type storedReceivable struct {
	ID               uint64
	Owner            [20]byte
	OriginalCreditor [20]byte
	DebtorHash       [32]byte
	FaceValue        *big.Int
	Currency         string
	IssuanceDate     uint64
	MaturityDate     uint64
	ProofHash        [32]byte
	Status           uint8
	RiskScore        uint64
	MetadataURI      string
}

func newStoredReceivable(r *receivables.Receivable) *storedReceivable {
	face := big.NewInt(0)
	if r.FaceValue != nil {
		face = new(big.Int).Set(r.FaceValue)
	}
	return &storedReceivable{
		ID:               r.ID,
		Owner:            r.Owner,
		OriginalCreditor: r.OriginalCreditor,
		DebtorHash:       r.DebtorHash,
		FaceValue:        face,
		Currency:         r.Currency,
		IssuanceDate:     r.IssuanceDate,
		MaturityDate:     r.MaturityDate,
		ProofHash:        r.ProofHash,
		Status:           uint8(r.Status),
		RiskScore:        r.RiskScore,
		MetadataURI:      r.MetadataURI,
	}
}

func (s *storedReceivable) toReceivable() (*receivables.Receivable, error) {
	status := receivables.Status(s.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("receivables: stored record %d has invalid status %d", s.ID, s.Status)
	}
	face := big.NewInt(0)
	if s.FaceValue != nil {
		face = new(big.Int).Set(s.FaceValue)
	}
	return &receivables.Receivable{
		ID:               s.ID,
		Owner:            s.Owner,
		OriginalCreditor: s.OriginalCreditor,
		DebtorHash:       s.DebtorHash,
		FaceValue:        face,
		Currency:         s.Currency,
		IssuanceDate:     s.IssuanceDate,
		MaturityDate:     s.MaturityDate,
		ProofHash:        s.ProofHash,
		Status:           status,
		RiskScore:        s.RiskScore,
		MetadataURI:      s.MetadataURI,
	}, nil
}

func receivableKey(id uint64) []byte {
	return prefixedKey(receivableRecordPrefix, encodeUint64(id))
}

func receivableOwnerKey(owner [20]byte) []byte {
	return prefixedKey(receivableOwnerPrefix, owner[:])
}

// ReceivableSettings loads the registry role assignments.
func (m *Manager) ReceivableSettings() (*receivables.Settings, bool, error) {
	settings := new(receivables.Settings)
	ok, err := m.KVGet(receivableSettingsKey, settings)
	if err != nil || !ok {
		return nil, ok, err
	}
	return settings, true, nil
}

// PutReceivableSettings persists the registry role assignments.
func (m *Manager) PutReceivableSettings(settings *receivables.Settings) error {
	if settings == nil {
		return fmt.Errorf("receivables: nil settings")
	}
	return m.KVPut(receivableSettingsKey, settings)
}

// ReceivableCounters loads the registry totals. A fresh store yields zeroed
// counters.
func (m *Manager) ReceivableCounters() (*receivables.Counters, error) {
	counters := new(receivables.Counters)
	if _, err := m.KVGet(receivableCountersKey, counters); err != nil {
		return nil, err
	}
	return counters, nil
}

// PutReceivableCounters persists the registry totals.
func (m *Manager) PutReceivableCounters(counters *receivables.Counters) error {
	if counters == nil {
		return fmt.Errorf("receivables: nil counters")
	}
	return m.KVPut(receivableCountersKey, counters)
}

// GetReceivable loads a receivable by id.
func (m *Manager) GetReceivable(id uint64) (*receivables.Receivable, bool, error) {
	stored := new(storedReceivable)
	ok, err := m.KVGet(receivableKey(id), stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	record, err := stored.toReceivable()
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// PutReceivable persists a receivable record.
func (m *Manager) PutReceivable(record *receivables.Receivable) error {
	if record == nil {
		return fmt.Errorf("receivables: nil record")
	}
	return m.KVPut(receivableKey(record.ID), newStoredReceivable(record))
}

// OwnerReceivables returns the ids indexed under owner.
func (m *Manager) OwnerReceivables(owner [20]byte) ([]uint64, error) {
	return getIDList(m, receivableOwnerKey(owner))
}

// PutOwnerReceivables replaces the owner index.
func (m *Manager) PutOwnerReceivables(owner [20]byte, ids []uint64) error {
	return putIDList(m, receivableOwnerKey(owner), ids)
}
