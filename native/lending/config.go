package lending

import "fmt"

// Config captures the admin-mutable borrowing parameters.
type Config struct {
	// MaxLTV caps principal/collateral at origination, in basis points.
	MaxLTV uint64 `toml:"max_ltv_bps" yaml:"max_ltv_bps" json:"maxLtvBps"`
	// LiquidationThreshold is the LTV above which a loan may be liquidated.
	// It is read live at liquidation time.
	LiquidationThreshold uint64 `toml:"liquidation_threshold_bps" yaml:"liquidation_threshold_bps" json:"liquidationThresholdBps"`
	// LiquidationPenalty is added to the debt when sizing recovery.
	LiquidationPenalty uint64 `toml:"liquidation_penalty_bps" yaml:"liquidation_penalty_bps" json:"liquidationPenaltyBps"`
	// BaseInterestRate is the annual simple rate assigned to new loans.
	BaseInterestRate uint64 `toml:"base_interest_rate_bps" yaml:"base_interest_rate_bps" json:"baseInterestRateBps"`
	// MaxLoanDuration bounds the requested loan term in seconds.
	MaxLoanDuration uint64 `toml:"max_loan_duration_secs" yaml:"max_loan_duration_secs" json:"maxLoanDurationSecs"`
	// RiskDiscountFactor scales a receivable's risk score into a haircut.
	RiskDiscountFactor uint64 `toml:"risk_discount_factor_bps" yaml:"risk_discount_factor_bps" json:"riskDiscountFactorBps"`
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		MaxLTV:               7_000,
		LiquidationThreshold: 8_500,
		LiquidationPenalty:   500,
		BaseInterestRate:     1_000,
		MaxLoanDuration:      SecondsPerYear,
		RiskDiscountFactor:   10_000,
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.MaxLTV == 0 || c.MaxLTV > basisPointsDenominator {
		return fmt.Errorf("%w: max ltv %d out of range", ErrInvalidConfig, c.MaxLTV)
	}
	if c.LiquidationThreshold < c.MaxLTV || c.LiquidationThreshold > basisPointsDenominator {
		return fmt.Errorf("%w: liquidation threshold %d must be within [max ltv, 10000]", ErrInvalidConfig, c.LiquidationThreshold)
	}
	if c.LiquidationPenalty > basisPointsDenominator {
		return fmt.Errorf("%w: liquidation penalty %d exceeds 10000", ErrInvalidConfig, c.LiquidationPenalty)
	}
	if c.MaxLoanDuration == 0 {
		return fmt.Errorf("%w: max loan duration must be positive", ErrInvalidConfig)
	}
	return nil
}
