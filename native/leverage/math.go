package leverage

import "math/big"

var (
	basisPoints = big.NewInt(10_000)
	wad         = mustBigInt("1000000000000000000") // 1e18 fixed-point scale
)

const secondsPerYear = 31_536_000

const moduleName = "leverage"

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// bpsShare returns amount * bps / 10000, floored.
func bpsShare(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return share.Quo(share, basisPoints)
}

// mulDiv returns a * b / denom, floored. A zero denominator yields zero.
func mulDiv(a, b, denom *big.Int) *big.Int {
	if a == nil || b == nil || denom == nil || denom.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, denom)
}

func minInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func cloneRat(r *big.Rat) *big.Rat {
	if r == nil {
		return new(big.Rat)
	}
	return new(big.Rat).Set(r)
}

// ratInterest computes principal * rate * elapsed / secondsPerYear, floored
// to an integer amount. The rate is an annualized fraction.
func ratInterest(principal *big.Int, rate *big.Rat, elapsed uint64) *big.Int {
	if principal == nil || principal.Sign() == 0 || rate == nil || rate.Sign() == 0 || elapsed == 0 {
		return big.NewInt(0)
	}
	perPeriod := new(big.Rat).Set(rate)
	perPeriod.Mul(perPeriod, new(big.Rat).SetUint64(elapsed))
	perPeriod.Quo(perPeriod, new(big.Rat).SetUint64(secondsPerYear))
	interest := perPeriod.Mul(perPeriod, new(big.Rat).SetInt(principal))
	if interest.Sign() <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(interest.Num(), interest.Denom())
}
