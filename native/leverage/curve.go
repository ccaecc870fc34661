package leverage

import "math/big"

// InterestCurve maps pool utilization to an annualized borrow rate using a
// two-segment piecewise-linear curve with a kink at the optimal utilization.
type InterestCurve struct {
	// BaseRate is the minimum borrow rate applied at zero utilization.
	BaseRate *big.Rat
	// Slope1 is the rate increase accumulated across the segment below the
	// kink, so the rate at the kink is BaseRate + Slope1.
	Slope1 *big.Rat
	// Slope2 is the additional rate accumulated between the kink and full
	// utilization. It also acts as the ceiling for the defensive branch
	// beyond 100% utilization.
	Slope2 *big.Rat
	// Optimal is the kink utilization where the slope changes.
	Optimal *big.Rat
	// MaxRate is a hard ceiling. A computed rate above it aborts accrual
	// rather than clamping, guarding against curve misconfiguration.
	MaxRate *big.Rat
}

// NewInterestCurve constructs a curve from decimal inputs, e.g. a 10% base
// rate is 0.10 and an 85% kink is 0.85.
func NewInterestCurve(baseRate, slope1, slope2, optimal, maxRate float64) *InterestCurve {
	curve := &InterestCurve{
		BaseRate: new(big.Rat),
		Slope1:   new(big.Rat),
		Slope2:   new(big.Rat),
		Optimal:  new(big.Rat),
		MaxRate:  new(big.Rat),
	}
	curve.BaseRate.SetFloat64(baseRate)
	curve.Slope1.SetFloat64(slope1)
	curve.Slope2.SetFloat64(slope2)
	curve.Optimal.SetFloat64(optimal)
	curve.MaxRate.SetFloat64(maxRate)
	return curve
}

// Clone returns a deep copy of the curve.
func (c *InterestCurve) Clone() *InterestCurve {
	if c == nil {
		return nil
	}
	return &InterestCurve{
		BaseRate: cloneRat(c.BaseRate),
		Slope1:   cloneRat(c.Slope1),
		Slope2:   cloneRat(c.Slope2),
		Optimal:  cloneRat(c.Optimal),
		MaxRate:  cloneRat(c.MaxRate),
	}
}

// Utilization computes U = totalBorrowed / (cash + totalBorrowed - reserves).
// Zero borrowing is zero utilization. A non-positive denominator with
// outstanding debt counts as full utilization.
func (c *InterestCurve) Utilization(cash, totalBorrowed, reserves *big.Int) *big.Rat {
	if totalBorrowed == nil || totalBorrowed.Sign() == 0 {
		return new(big.Rat)
	}
	denom := new(big.Int).Add(zeroIfNil(cash), totalBorrowed)
	denom.Sub(denom, zeroIfNil(reserves))
	if denom.Sign() <= 0 {
		return big.NewRat(1, 1)
	}
	return new(big.Rat).SetFrac(totalBorrowed, denom)
}

// Rate derives the annualized borrow rate for the given pool snapshot. The
// result is validated against MaxRate; breaching the ceiling is treated as a
// fatal misconfiguration and aborts the caller's accrual.
func (c *InterestCurve) Rate(cash, totalBorrowed, reserves *big.Int) (*big.Rat, error) {
	if c == nil {
		return nil, errNilCurve
	}
	utilization := c.Utilization(cash, totalBorrowed, reserves)
	rate := c.rateAt(utilization)
	if c.MaxRate != nil && c.MaxRate.Sign() > 0 && rate.Cmp(c.MaxRate) > 0 {
		return nil, ErrRateCeiling
	}
	return rate, nil
}

func (c *InterestCurve) rateAt(utilization *big.Rat) *big.Rat {
	one := big.NewRat(1, 1)
	if utilization.Cmp(one) > 0 {
		// Defensive branch; unreachable while pool accounting holds.
		return cloneRat(c.Slope2)
	}

	rate := cloneRat(c.BaseRate)
	optimal := cloneRat(c.Optimal)
	slope1 := cloneRat(c.Slope1)
	if optimal.Sign() == 0 || utilization.Cmp(optimal) < 0 {
		if optimal.Sign() == 0 {
			return rate.Add(rate, slope1)
		}
		segment := new(big.Rat).Mul(utilization, slope1)
		segment.Quo(segment, optimal)
		return rate.Add(rate, segment)
	}

	// At or beyond the kink: full slope1 plus the slope2 portion of the
	// excess over the kink.
	rate.Add(rate, slope1)
	span := new(big.Rat).Sub(one, optimal)
	if span.Sign() <= 0 {
		return rate
	}
	excess := new(big.Rat).Sub(utilization, optimal)
	segment := new(big.Rat).Mul(excess, cloneRat(c.Slope2))
	segment.Quo(segment, span)
	return rate.Add(rate, segment)
}

// DefaultInterestCurve is a triple-slope-style configuration with a modest
// base rate and a kink at 85% utilization.
var DefaultInterestCurve = NewInterestCurve(0.10, 0.10, 1.0, 0.85, 5.0)
