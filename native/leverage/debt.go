package leverage

import "math/big"

// DebtPool carries the aggregate accounting for one lending market. Borrowed
// value is tracked as fungible debt shares whose value-per-share grows as
// interest accrues. Amounts are wei-scale integers.
type DebtPool struct {
	// TotalDebtShare is the sum of all outstanding position debt shares.
	TotalDebtShare *big.Int
	// TotalDebtValue is the aggregate owed value the shares convert to.
	TotalDebtValue *big.Int
	// Reserve is retained interest and liquidation fees backing lender
	// losses. The cash sits in the pool treasury but is excluded from
	// lendable liquidity.
	Reserve *big.Int
	// TotalSupplyShares is the aggregate lender share supply.
	TotalSupplyShares *big.Int
	// LastAccrual records the unix timestamp of the last interest accrual.
	LastAccrual uint64
}

// NewDebtPool returns an empty pool with zeroed totals.
func NewDebtPool() *DebtPool {
	pool := &DebtPool{}
	pool.ensure()
	return pool
}

func (p *DebtPool) ensure() {
	if p.TotalDebtShare == nil {
		p.TotalDebtShare = big.NewInt(0)
	}
	if p.TotalDebtValue == nil {
		p.TotalDebtValue = big.NewInt(0)
	}
	if p.Reserve == nil {
		p.Reserve = big.NewInt(0)
	}
	if p.TotalSupplyShares == nil {
		p.TotalSupplyShares = big.NewInt(0)
	}
}

// Clone returns a deep copy of the pool totals.
func (p *DebtPool) Clone() *DebtPool {
	if p == nil {
		return nil
	}
	clone := &DebtPool{LastAccrual: p.LastAccrual}
	if p.TotalDebtShare != nil {
		clone.TotalDebtShare = new(big.Int).Set(p.TotalDebtShare)
	}
	if p.TotalDebtValue != nil {
		clone.TotalDebtValue = new(big.Int).Set(p.TotalDebtValue)
	}
	if p.Reserve != nil {
		clone.Reserve = new(big.Int).Set(p.Reserve)
	}
	if p.TotalSupplyShares != nil {
		clone.TotalSupplyShares = new(big.Int).Set(p.TotalSupplyShares)
	}
	return clone
}

// Accrue grows TotalDebtValue by the interest earned since the last accrual
// and routes the reserve-factor cut into the reserve. It must run before any
// share/value conversion in the same settlement call. The accrued interest is
// returned for observability.
func (p *DebtPool) Accrue(curve *InterestCurve, now uint64, cash *big.Int, reserveFactorBps uint64) (*big.Int, error) {
	p.ensure()
	if now <= p.LastAccrual {
		return big.NewInt(0), nil
	}
	elapsed := now - p.LastAccrual
	if p.LastAccrual == 0 {
		// First touch of the pool only stamps the clock.
		elapsed = 0
	}
	p.LastAccrual = now
	if elapsed == 0 || p.TotalDebtValue.Sign() == 0 {
		return big.NewInt(0), nil
	}

	rate, err := curve.Rate(cash, p.TotalDebtValue, p.Reserve)
	if err != nil {
		return nil, err
	}
	interest := ratInterest(p.TotalDebtValue, rate, elapsed)
	if interest.Sign() == 0 {
		return interest, nil
	}

	p.TotalDebtValue = new(big.Int).Add(p.TotalDebtValue, interest)
	reserveCut := bpsShare(interest, reserveFactorBps)
	if reserveCut.Sign() > 0 {
		p.Reserve = new(big.Int).Add(p.Reserve, reserveCut)
	}
	return interest, nil
}

// ShareToValue converts a debt share amount to its current owed value. While
// the pool has no shares, one share is worth exactly one unit of value.
func (p *DebtPool) ShareToValue(share *big.Int) *big.Int {
	p.ensure()
	share = zeroIfNil(share)
	if p.TotalDebtShare.Sign() == 0 {
		return new(big.Int).Set(share)
	}
	return mulDiv(share, p.TotalDebtValue, p.TotalDebtShare)
}

// ValueToShare converts an owed value to debt shares at the current exchange
// ratio, with the same bootstrap rule as ShareToValue.
func (p *DebtPool) ValueToShare(value *big.Int) *big.Int {
	p.ensure()
	value = zeroIfNil(value)
	if p.TotalDebtShare.Sign() == 0 {
		return new(big.Int).Set(value)
	}
	return mulDiv(value, p.TotalDebtShare, p.TotalDebtValue)
}

// AddDebt mints debt shares for the given value so existing share holders are
// not diluted, and grows both pool totals.
func (p *DebtPool) AddDebt(value *big.Int) *big.Int {
	p.ensure()
	value = zeroIfNil(value)
	share := p.ValueToShare(value)
	p.TotalDebtShare = new(big.Int).Add(p.TotalDebtShare, share)
	p.TotalDebtValue = new(big.Int).Add(p.TotalDebtValue, value)
	return share
}

// RemoveDebt burns the given shares and returns the value they realized at
// the current exchange ratio. Burning more than the pool holds is a fatal
// invariant violation, never an expected condition.
func (p *DebtPool) RemoveDebt(share *big.Int) (*big.Int, error) {
	p.ensure()
	share = zeroIfNil(share)
	if share.Cmp(p.TotalDebtShare) > 0 {
		return nil, ErrDebtUnderflow
	}
	value := p.ShareToValue(share)
	if value.Cmp(p.TotalDebtValue) > 0 {
		return nil, ErrDebtUnderflow
	}
	p.TotalDebtShare = new(big.Int).Sub(p.TotalDebtShare, share)
	p.TotalDebtValue = new(big.Int).Sub(p.TotalDebtValue, value)
	return value, nil
}
