package config

import (
	"fmt"
	"math/big"
	"strings"

	"nexum/crypto"
	nativecommon "nexum/native/common"
)

// Validate checks the document and resolves its addresses and amounts.
func (g *Genesis) Validate() error {
	if g == nil {
		return fmt.Errorf("genesis must not be nil")
	}
	admin, err := crypto.ParseAddress(strings.TrimSpace(g.Admin))
	if err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	verifier, err := crypto.ParseAddress(strings.TrimSpace(g.Verifier))
	if err != nil {
		return fmt.Errorf("verifier: %w", err)
	}
	if err := g.Lending.Validate(); err != nil {
		return fmt.Errorf("lending: %w", err)
	}
	if g.Vault.ReserveFactorBps > nativecommon.BasisPoints {
		return fmt.Errorf("vault: reserve factor %d exceeds 10000", g.Vault.ReserveFactorBps)
	}
	if g.Vault.MaxUtilizationBps > nativecommon.BasisPoints {
		return fmt.Errorf("vault: max utilization %d exceeds 10000", g.Vault.MaxUtilizationBps)
	}
	minDeposit, err := parseAmount(g.Vault.MinDeposit)
	if err != nil {
		return fmt.Errorf("vault: min deposit: %w", err)
	}
	for i := range g.Alloc {
		alloc := &g.Alloc[i]
		addr, err := crypto.ParseAddress(strings.TrimSpace(alloc.Address))
		if err != nil {
			return fmt.Errorf("alloc[%d]: %w", i, err)
		}
		if strings.TrimSpace(alloc.Asset) == "" {
			return fmt.Errorf("alloc[%d]: asset required", i)
		}
		amount, err := parseAmount(alloc.Amount)
		if err != nil {
			return fmt.Errorf("alloc[%d]: %w", i, err)
		}
		if amount.Sign() == 0 {
			return fmt.Errorf("alloc[%d]: amount must be positive", i)
		}
		alloc.Asset = strings.ToUpper(strings.TrimSpace(alloc.Asset))
		alloc.address = addr
		alloc.amount = amount
	}
	g.admin = admin
	g.verifier = verifier
	g.Vault.minDeposit = minDeposit
	return nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 || amount.Cmp(nativecommon.MaxAmount) > 0 {
		return nil, fmt.Errorf("amount %q out of range", value)
	}
	return amount, nil
}
