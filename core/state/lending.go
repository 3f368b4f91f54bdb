package state

import (
	"fmt"
	"math/big"

	nativecommon "nexum/native/common"
	"nexum/native/lending"
)

type storedLoan struct {
	ID                 uint64
	Borrower           [20]byte
	ReceivableIDs      []uint64
	CollateralValue    *big.Int
	Principal          *big.Int
	InterestRate       uint64
	AccruedInterest    *big.Int
	BorrowedAt         uint64
	LastInterestUpdate uint64
	DueDate            uint64
	Status             uint8
}

type storedLendingCounters struct {
	NextLoanID    uint64
	TotalLoans    uint64
	TotalBorrowed *big.Int
}

func loanKey(id uint64) []byte {
	return prefixedKey(lendingLoanPrefix, encodeUint64(id))
}

func borrowerLoansKey(borrower [20]byte) []byte {
	return prefixedKey(lendingBorrowerPrefix, borrower[:])
}

// LendingSettings loads the engine admin and configuration.
func (m *Manager) LendingSettings() (*lending.Settings, bool, error) {
	settings := new(lending.Settings)
	ok, err := m.KVGet(lendingSettingsKey, settings)
	if err != nil || !ok {
		return nil, ok, err
	}
	return settings, true, nil
}

// PutLendingSettings persists the engine admin and configuration.
func (m *Manager) PutLendingSettings(settings *lending.Settings) error {
	if settings == nil {
		return fmt.Errorf("lending: nil settings")
	}
	return m.KVPut(lendingSettingsKey, settings)
}

// LendingCounters loads the engine totals.
func (m *Manager) LendingCounters() (*lending.Counters, error) {
	stored := new(storedLendingCounters)
	if _, err := m.KVGet(lendingCountersKey, stored); err != nil {
		return nil, err
	}
	return &lending.Counters{
		NextLoanID:    stored.NextLoanID,
		TotalLoans:    stored.TotalLoans,
		TotalBorrowed: nativecommon.CopyAmount(stored.TotalBorrowed),
	}, nil
}

// PutLendingCounters persists the engine totals.
func (m *Manager) PutLendingCounters(counters *lending.Counters) error {
	if counters == nil {
		return fmt.Errorf("lending: nil counters")
	}
	return m.KVPut(lendingCountersKey, &storedLendingCounters{
		NextLoanID:    counters.NextLoanID,
		TotalLoans:    counters.TotalLoans,
		TotalBorrowed: nativecommon.CopyAmount(counters.TotalBorrowed),
	})
}

// GetLoan loads a loan by id.
func (m *Manager) GetLoan(id uint64) (*lending.Loan, bool, error) {
	stored := new(storedLoan)
	ok, err := m.KVGet(loanKey(id), stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	status := lending.LoanStatus(stored.Status)
	if !status.Valid() {
		return nil, false, fmt.Errorf("lending: stored loan %d has invalid status %d", id, stored.Status)
	}
	return &lending.Loan{
		ID:                 stored.ID,
		Borrower:           stored.Borrower,
		ReceivableIDs:      append([]uint64(nil), stored.ReceivableIDs...),
		CollateralValue:    nativecommon.CopyAmount(stored.CollateralValue),
		Principal:          nativecommon.CopyAmount(stored.Principal),
		InterestRate:       stored.InterestRate,
		AccruedInterest:    nativecommon.CopyAmount(stored.AccruedInterest),
		BorrowedAt:         stored.BorrowedAt,
		LastInterestUpdate: stored.LastInterestUpdate,
		DueDate:            stored.DueDate,
		Status:             status,
	}, true, nil
}

// PutLoan persists a loan record.
func (m *Manager) PutLoan(loan *lending.Loan) error {
	if loan == nil {
		return fmt.Errorf("lending: nil loan")
	}
	return m.KVPut(loanKey(loan.ID), &storedLoan{
		ID:                 loan.ID,
		Borrower:           loan.Borrower,
		ReceivableIDs:      append([]uint64(nil), loan.ReceivableIDs...),
		CollateralValue:    nativecommon.CopyAmount(loan.CollateralValue),
		Principal:          nativecommon.CopyAmount(loan.Principal),
		InterestRate:       loan.InterestRate,
		AccruedInterest:    nativecommon.CopyAmount(loan.AccruedInterest),
		BorrowedAt:         loan.BorrowedAt,
		LastInterestUpdate: loan.LastInterestUpdate,
		DueDate:            loan.DueDate,
		Status:             uint8(loan.Status),
	})
}

// BorrowerLoans returns the loan ids opened by borrower.
func (m *Manager) BorrowerLoans(borrower [20]byte) ([]uint64, error) {
	return getIDList(m, borrowerLoansKey(borrower))
}

// PutBorrowerLoans replaces the borrower index.
func (m *Manager) PutBorrowerLoans(borrower [20]byte, ids []uint64) error {
	return putIDList(m, borrowerLoansKey(borrower), ids)
}
