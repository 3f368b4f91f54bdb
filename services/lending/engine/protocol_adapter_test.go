package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"nexum/config"
	"nexum/core"
	"nexum/core/auth"
	"nexum/crypto"
	nativecommon "nexum/native/common"
	"nexum/native/lending"
	"nexum/native/receivables"
	"nexum/native/vault"
	"nexum/storage"
)

func addr(b byte) [20]byte {
	var out [20]byte
	out[0] = 0x5a
	out[19] = b
	return out
}

var (
	admin    = addr(1)
	verifier = addr(2)
	lp       = addr(3)
	borrower = addr(4)
)

const genesisTime uint64 = 1_700_000_000

func newTestEngine(t *testing.T) (Engine, *uint64) {
	t.Helper()
	now := genesisTime
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	protocol, err := core.NewProtocol(db, core.WithClock(core.ClockFunc(func() uint64 { return now })))
	require.NoError(t, err)

	g := config.Default()
	g.Admin = crypto.FromRaw(admin).String()
	g.Verifier = crypto.FromRaw(verifier).String()
	for _, holder := range [][20]byte{lp, borrower} {
		g.Alloc = append(g.Alloc, config.Allocation{Address: crypto.FromRaw(holder).String(), Asset: "USDC", Amount: "5000000"})
	}
	require.NoError(t, g.Validate())
	require.NoError(t, protocol.Bootstrap(context.Background(), g))
	return NewProtocolAdapter(protocol), &now
}

func as(principals ...[20]byte) context.Context {
	return auth.WithPrincipals(context.Background(), principals...)
}

func TestAdapterBorrowFlow(t *testing.T) {
	eng, now := newTestEngine(t)

	shares, err := eng.Deposit(as(lp), lp, big.NewInt(2_000_000))
	require.NoError(t, err)
	require.Equal(t, "2000000", shares.String())

	id, err := eng.MintReceivable(as(verifier, borrower), borrower, receivables.MintParams{
		FaceValue:    big.NewInt(1_000_000),
		Currency:     "usdc",
		MaturityDate: *now + lending.SecondsPerYear,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	loan, err := eng.Borrow(as(borrower), borrower, []uint64{id}, big.NewInt(500_000), 30*24*3600)
	require.NoError(t, err)
	require.Equal(t, lending.LoanActive, loan.Status)
	require.Equal(t, "500000", loan.Principal.String())

	snapshot, err := eng.GetVault(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(2_500), snapshot.UtilizationBps)
	require.Equal(t, "1500000", snapshot.AvailableLiquidity.String())

	health, err := eng.GetHealth(context.Background(), loan.ID)
	require.NoError(t, err)
	require.Equal(t, "5000", health.LTV.String())

	remaining, err := eng.Repay(as(borrower), borrower, loan.ID, big.NewInt(500_000))
	require.NoError(t, err)
	require.Zero(t, remaining.Sign())

	rec, err := eng.GetReceivable(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, receivables.StatusActive, rec.Status)

	loans, err := eng.BorrowerLoans(context.Background(), borrower)
	require.NoError(t, err)
	require.Equal(t, []uint64{loan.ID}, loans)

	stats, err := eng.ReceivableStats(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1), stats.TotalMinted)
}

func TestAdapterRequiresPrincipal(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, err := eng.Deposit(context.Background(), lp, big.NewInt(10))
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAdapterTranslatesErrors(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.GetLoan(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = eng.Deposit(as(borrower), lp, big.NewInt(10))
	require.ErrorIs(t, err, ErrForbidden)

	_, err = eng.Withdraw(as(lp), lp, big.NewInt(1))
	require.ErrorIs(t, err, ErrRejected)

	_, err = eng.Borrow(as(borrower), borrower, nil, big.NewInt(1), 10)
	require.ErrorIs(t, err, ErrRejected)

	_, err = eng.GetPosition(context.Background(), lp)
	require.ErrorIs(t, err, ErrNotFound)

	err = eng.SetPaused(as(admin), "oracle", true)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAdapterPauseRoundTrip(t *testing.T) {
	eng, _ := newTestEngine(t)

	require.ErrorIs(t, eng.SetPaused(as(lp), vault.ModuleName, true), ErrForbidden)
	require.NoError(t, eng.SetPaused(as(admin), vault.ModuleName, true))

	_, err := eng.Deposit(as(lp), lp, big.NewInt(10))
	require.ErrorIs(t, err, ErrPaused)

	snapshot, err := eng.GetVault(context.Background())
	require.NoError(t, err)
	require.True(t, snapshot.Paused)

	require.NoError(t, eng.SetPaused(as(admin), vault.ModuleName, false))
	_, err = eng.Deposit(as(lp), lp, big.NewInt(10))
	require.NoError(t, err)
}

func TestAdapterConfigUpdate(t *testing.T) {
	eng, _ := newTestEngine(t)
	cfg, err := eng.GetConfig(context.Background())
	require.NoError(t, err)
	require.Equal(t, lending.DefaultConfig(), cfg)

	cfg.MaxLTV = 20_000
	require.ErrorIs(t, eng.SetConfig(as(admin), cfg), ErrInvalidArgument)

	cfg.MaxLTV = 6_000
	require.NoError(t, eng.SetConfig(as(admin), cfg))
	updated, err := eng.GetConfig(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(6_000), updated.MaxLTV)
}

func TestTranslateError(t *testing.T) {
	cases := []struct {
		in   error
		want error
	}{
		{nativecommon.ErrModulePaused, ErrPaused},
		{fmt.Errorf("registry: %w", receivables.ErrNotVerifier), ErrForbidden},
		{receivables.ErrNotBorrowEngine, ErrForbidden},
		{fmt.Errorf("vault: %w", vault.ErrNotBorrowEngine), ErrForbidden},
		{lending.ErrLoanNotFound, ErrNotFound},
		{lending.ErrInvalidStatus, ErrConflict},
		{core.ErrGenesisApplied, ErrConflict},
		{lending.ErrInvalidDuration, ErrInvalidArgument},
		{vault.ErrInsufficientLiquidity, ErrRejected},
		{errors.New("disk on fire"), ErrInternal},
		{ErrNotFound, ErrNotFound},
	}
	for _, tc := range cases {
		require.ErrorIs(t, translateError(tc.in), tc.want, "input %v", tc.in)
	}
	require.Nil(t, translateError(nil))
	require.ErrorIs(t, translateError(context.Canceled), context.Canceled)
}
