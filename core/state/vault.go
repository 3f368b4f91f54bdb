package state

import (
	"fmt"
	"math/big"

	nativecommon "nexum/native/common"
	"nexum/native/vault"
)

type storedVaultState struct {
	Admin               [20]byte
	BorrowEngine        [20]byte
	BaseAsset           string
	TotalDeposits       *big.Int
	TotalShares         *big.Int
	TotalBorrowed       *big.Int
	TotalInterestEarned *big.Int
	ProtocolReserves    *big.Int
	ReserveFactor       uint64
	MaxUtilization      uint64
	MinDeposit          *big.Int
}

func vaultPositionKey(addr [20]byte) []byte {
	return prefixedKey(vaultPositionPrefix, addr[:])
}

// VaultState loads the pool accounting record.
func (m *Manager) VaultState() (*vault.State, bool, error) {
	stored := new(storedVaultState)
	ok, err := m.KVGet(vaultStateKey, stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &vault.State{
		Admin:               stored.Admin,
		BorrowEngine:        stored.BorrowEngine,
		BaseAsset:           stored.BaseAsset,
		TotalDeposits:       nativecommon.CopyAmount(stored.TotalDeposits),
		TotalShares:         nativecommon.CopyAmount(stored.TotalShares),
		TotalBorrowed:       nativecommon.CopyAmount(stored.TotalBorrowed),
		TotalInterestEarned: nativecommon.CopyAmount(stored.TotalInterestEarned),
		ProtocolReserves:    nativecommon.CopyAmount(stored.ProtocolReserves),
		ReserveFactor:       stored.ReserveFactor,
		MaxUtilization:      stored.MaxUtilization,
		MinDeposit:          nativecommon.CopyAmount(stored.MinDeposit),
	}, true, nil
}

// PutVaultState persists the pool accounting record.
func (m *Manager) PutVaultState(st *vault.State) error {
	if st == nil {
		return fmt.Errorf("vault: nil state")
	}
	return m.KVPut(vaultStateKey, &storedVaultState{
		Admin:               st.Admin,
		BorrowEngine:        st.BorrowEngine,
		BaseAsset:           st.BaseAsset,
		TotalDeposits:       nativecommon.CopyAmount(st.TotalDeposits),
		TotalShares:         nativecommon.CopyAmount(st.TotalShares),
		TotalBorrowed:       nativecommon.CopyAmount(st.TotalBorrowed),
		TotalInterestEarned: nativecommon.CopyAmount(st.TotalInterestEarned),
		ProtocolReserves:    nativecommon.CopyAmount(st.ProtocolReserves),
		ReserveFactor:       st.ReserveFactor,
		MaxUtilization:      st.MaxUtilization,
		MinDeposit:          nativecommon.CopyAmount(st.MinDeposit),
	})
}

type storedPosition struct {
	Shares           *big.Int
	DepositTimestamp uint64
}

// VaultPosition loads the share position of addr.
func (m *Manager) VaultPosition(addr [20]byte) (*vault.Position, bool, error) {
	stored := new(storedPosition)
	ok, err := m.KVGet(vaultPositionKey(addr), stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &vault.Position{Shares: nativecommon.CopyAmount(stored.Shares), DepositTimestamp: stored.DepositTimestamp}, true, nil
}

// PutVaultPosition persists the share position of addr.
func (m *Manager) PutVaultPosition(addr [20]byte, pos *vault.Position) error {
	if pos == nil {
		return fmt.Errorf("vault: nil position")
	}
	return m.KVPut(vaultPositionKey(addr), &storedPosition{Shares: nativecommon.CopyAmount(pos.Shares), DepositTimestamp: pos.DepositTimestamp})
}

// DeleteVaultPosition removes the position of addr.
func (m *Manager) DeleteVaultPosition(addr [20]byte) error {
	return m.KVDelete(vaultPositionKey(addr))
}
