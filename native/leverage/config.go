package leverage

import (
	"fmt"
	"math/big"

	"leverfarm/crypto"
)

// Config captures the runtime configuration for the native leverage module.
type Config struct {
	ReserveFactorBps uint64         `toml:"ReserveFactorBps"`
	Curve            CurveConfig    `toml:"curve"`
	Workers          []WorkerConfig `toml:"worker"`
}

// CurveConfig describes the two-slope borrow rate model as annualized
// fractions.
type CurveConfig struct {
	BaseRate      float64 `toml:"BaseRate"`
	Slope1        float64 `toml:"Slope1"`
	Slope2        float64 `toml:"Slope2"`
	OptimalUtil   float64 `toml:"OptimalUtilization"`
	MaxBorrowRate float64 `toml:"MaxBorrowRate"`
}

// WorkerConfig is the per-worker policy as configured, with the address in
// bech32 form.
type WorkerConfig struct {
	Address           string   `toml:"Address"`
	AcceptDebt        bool     `toml:"AcceptDebt"`
	WorkFactorBps     uint64   `toml:"WorkFactorBps"`
	KillFactorBps     uint64   `toml:"KillFactorBps"`
	MinDebtSizeWei    *big.Int `toml:"MinDebtSizeWei"`
	KillBps           uint64   `toml:"KillBps"`
	SecurityFactorBps uint64   `toml:"SecurityFactorBps"`
	AllowOwnerKill    bool     `toml:"AllowOwnerKill"`
}

// EnsureDefaults populates zero-value fields with the protocol defaults so a
// sparse configuration file still yields a workable module.
func (c *Config) EnsureDefaults() {
	if c.Curve == (CurveConfig{}) {
		c.Curve = CurveConfig{
			BaseRate:      0.10,
			Slope1:        0.10,
			Slope2:        1.0,
			OptimalUtil:   0.85,
			MaxBorrowRate: 5.0,
		}
	}
	for i := range c.Workers {
		if c.Workers[i].MinDebtSizeWei == nil {
			c.Workers[i].MinDebtSizeWei = big.NewInt(0)
		}
	}
}

// Validate rejects configurations the engines cannot run with.
func (c *Config) Validate() error {
	if c.ReserveFactorBps > 10_000 {
		return fmt.Errorf("leverage config: ReserveFactorBps %d exceeds 10000", c.ReserveFactorBps)
	}
	if c.Curve.OptimalUtil <= 0 || c.Curve.OptimalUtil >= 1 {
		return fmt.Errorf("leverage config: OptimalUtilization %v outside (0, 1)", c.Curve.OptimalUtil)
	}
	for _, w := range c.Workers {
		if _, err := crypto.DecodeAddress(w.Address); err != nil {
			return fmt.Errorf("leverage config: worker address %q: %w", w.Address, err)
		}
		if w.WorkFactorBps == 0 || w.KillFactorBps == 0 {
			return fmt.Errorf("leverage config: worker %s has zero risk factors", w.Address)
		}
		if w.KillFactorBps <= w.WorkFactorBps {
			// The kill bound must sit above the open bound or every
			// freshly opened position would be instantly liquidatable.
			return fmt.Errorf("leverage config: worker %s KillFactorBps must exceed WorkFactorBps", w.Address)
		}
		if w.KillBps > 10_000 || w.SecurityFactorBps > 10_000 {
			return fmt.Errorf("leverage config: worker %s fee factors exceed 10000", w.Address)
		}
	}
	return nil
}

// InterestCurve builds the borrow rate model from the configuration.
func (c *Config) InterestCurve() *InterestCurve {
	return NewInterestCurve(c.Curve.BaseRate, c.Curve.Slope1, c.Curve.Slope2, c.Curve.OptimalUtil, c.Curve.MaxBorrowRate)
}

// Registry builds the worker policy registry from the configuration.
func (c *Config) Registry() (*PolicyRegistry, error) {
	registry := NewPolicyRegistry()
	for _, w := range c.Workers {
		addr, err := crypto.DecodeAddress(w.Address)
		if err != nil {
			return nil, fmt.Errorf("leverage config: worker address %q: %w", w.Address, err)
		}
		registry.Register(addr, WorkerPolicy{
			AcceptDebt:        w.AcceptDebt,
			WorkFactorBps:     w.WorkFactorBps,
			KillFactorBps:     w.KillFactorBps,
			MinDebtSize:       w.MinDebtSizeWei,
			KillBps:           w.KillBps,
			SecurityFactorBps: w.SecurityFactorBps,
			AllowOwnerKill:    w.AllowOwnerKill,
		})
	}
	return registry, nil
}
