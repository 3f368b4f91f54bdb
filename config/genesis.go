package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"nexum/native/lending"
	"nexum/native/vault"
)

// Genesis is the protocol bootstrap document.
type Genesis struct {
	Admin    string         `toml:"Admin"`
	Verifier string         `toml:"Verifier"`
	Vault    VaultGenesis   `toml:"vault"`
	Lending  lending.Config `toml:"lending"`
	Pauses   Pauses         `toml:"pauses"`
	Alloc    []Allocation   `toml:"alloc"`

	admin    [20]byte
	verifier [20]byte
}

// Default returns a genesis document with every optional field populated.
// Admin and verifier must still be supplied.
func Default() *Genesis {
	g := &Genesis{Lending: lending.DefaultConfig()}
	g.EnsureDefaults()
	return g
}

// Load reads, defaults and validates the genesis document at path.
func Load(path string) (*Genesis, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis path must be provided")
	}
	g := Default()
	meta, err := toml.DecodeFile(path, g)
	if err != nil {
		return nil, fmt.Errorf("decode genesis %q: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("genesis %s: unknown field %s", path, undecoded[0].String())
	}
	g.EnsureDefaults()
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("genesis %s: %w", path, err)
	}
	return g, nil
}

// Write persists the document as TOML, creating parent directories.
func Write(path string, g *Genesis) error {
	if g == nil {
		return fmt.Errorf("genesis must not be nil")
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(g)
}

// EnsureDefaults fills zero-valued optional fields.
func (g *Genesis) EnsureDefaults() {
	if g == nil {
		return
	}
	defaults := lending.DefaultConfig()
	if g.Lending.MaxLTV == 0 {
		g.Lending.MaxLTV = defaults.MaxLTV
	}
	if g.Lending.LiquidationThreshold == 0 {
		g.Lending.LiquidationThreshold = defaults.LiquidationThreshold
	}
	if g.Lending.MaxLoanDuration == 0 {
		g.Lending.MaxLoanDuration = defaults.MaxLoanDuration
	}
	if strings.TrimSpace(g.Vault.BaseAsset) == "" {
		g.Vault.BaseAsset = "USDC"
	}
	g.Vault.BaseAsset = strings.ToUpper(strings.TrimSpace(g.Vault.BaseAsset))
	if g.Vault.MaxUtilizationBps == 0 {
		g.Vault.MaxUtilizationBps = vault.DefaultMaxUtilization
	}
	if strings.TrimSpace(g.Vault.MinDeposit) == "" {
		g.Vault.MinDeposit = "0"
	}
}

// AdminAddress returns the parsed admin. Valid after Validate.
func (g *Genesis) AdminAddress() [20]byte { return g.admin }

// VerifierAddress returns the parsed verifier. Valid after Validate.
func (g *Genesis) VerifierAddress() [20]byte { return g.verifier }

// VaultParams converts the vault section into vault.Params. Valid after
// Validate.
func (g *Genesis) VaultParams() vault.Params {
	minDeposit := big.NewInt(0)
	if g.Vault.minDeposit != nil {
		minDeposit = new(big.Int).Set(g.Vault.minDeposit)
	}
	return vault.Params{
		BaseAsset:      g.Vault.BaseAsset,
		ReserveFactor:  g.Vault.ReserveFactorBps,
		MaxUtilization: g.Vault.MaxUtilizationBps,
		MinDeposit:     minDeposit,
	}
}
