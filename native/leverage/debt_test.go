package leverage

import (
	"errors"
	"math/big"
	"testing"
)

func flatCurve(rate *big.Rat) *InterestCurve {
	return &InterestCurve{
		BaseRate: rate,
		Slope1:   new(big.Rat),
		Slope2:   new(big.Rat),
		Optimal:  big.NewRat(17, 20),
		MaxRate:  big.NewRat(5, 1),
	}
}

func TestShareConversionBootstrapsOneToOne(t *testing.T) {
	pool := NewDebtPool()
	share := pool.AddDebt(big.NewInt(1000))
	if share.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected 1:1 bootstrap share, got %s", share)
	}
	if pool.TotalDebtShare.Cmp(big.NewInt(1000)) != 0 || pool.TotalDebtValue.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected totals: share %s value %s", pool.TotalDebtShare, pool.TotalDebtValue)
	}
}

func TestShareConversionTracksExchangeRatio(t *testing.T) {
	pool := NewDebtPool()
	pool.TotalDebtShare = big.NewInt(1000)
	pool.TotalDebtValue = big.NewInt(1500)

	if got := pool.ShareToValue(big.NewInt(200)); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("share to value: got %s want 300", got)
	}
	if got := pool.ValueToShare(big.NewInt(300)); got.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("value to share: got %s want 200", got)
	}

	// New borrowing mints shares at the grown ratio so existing holders are
	// not diluted.
	share := pool.AddDebt(big.NewInt(150))
	if share.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected 100 shares for 150 value, got %s", share)
	}
}

func TestRemoveDebtRealizesCurrentValue(t *testing.T) {
	pool := NewDebtPool()
	pool.TotalDebtShare = big.NewInt(1000)
	pool.TotalDebtValue = big.NewInt(1500)

	value, err := pool.RemoveDebt(big.NewInt(400))
	if err != nil {
		t.Fatalf("remove debt: %v", err)
	}
	if value.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("expected 600 value, got %s", value)
	}
	if pool.TotalDebtShare.Cmp(big.NewInt(600)) != 0 || pool.TotalDebtValue.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("unexpected totals after removal: share %s value %s", pool.TotalDebtShare, pool.TotalDebtValue)
	}
}

func TestRemoveDebtUnderflowRejected(t *testing.T) {
	pool := NewDebtPool()
	pool.TotalDebtShare = big.NewInt(100)
	pool.TotalDebtValue = big.NewInt(100)

	if _, err := pool.RemoveDebt(big.NewInt(101)); !errors.Is(err, ErrDebtUnderflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
}

func TestAccrueFirstTouchOnlyStampsClock(t *testing.T) {
	pool := NewDebtPool()
	pool.AddDebt(big.NewInt(1000))

	interest, err := pool.Accrue(flatCurve(big.NewRat(1, 10)), 500, big.NewInt(1000), 0)
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if interest.Sign() != 0 {
		t.Fatalf("expected no interest on first touch, got %s", interest)
	}
	if pool.LastAccrual != 500 {
		t.Fatalf("expected clock stamp 500, got %d", pool.LastAccrual)
	}
	if pool.TotalDebtValue.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("debt value moved on first touch: %s", pool.TotalDebtValue)
	}
}

func TestAccrueGrowsDebtAndReserve(t *testing.T) {
	pool := NewDebtPool()
	pool.AddDebt(big.NewInt(1000))
	pool.LastAccrual = 1

	interest, err := pool.Accrue(flatCurve(big.NewRat(1, 10)), 1+secondsPerYear, big.NewInt(1000), 1000)
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if interest.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected 100 interest over one year at 10%%, got %s", interest)
	}
	if pool.TotalDebtValue.Cmp(big.NewInt(1100)) != 0 {
		t.Fatalf("expected debt value 1100, got %s", pool.TotalDebtValue)
	}
	if pool.Reserve.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected reserve 10, got %s", pool.Reserve)
	}
	// Shares are untouched; the value per share grew instead.
	if pool.TotalDebtShare.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("shares changed during accrual: %s", pool.TotalDebtShare)
	}
}

func TestAccrueIgnoresStaleClock(t *testing.T) {
	pool := NewDebtPool()
	pool.AddDebt(big.NewInt(1000))
	pool.LastAccrual = 1000

	interest, err := pool.Accrue(flatCurve(big.NewRat(1, 10)), 999, big.NewInt(1000), 0)
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if interest.Sign() != 0 {
		t.Fatalf("expected no interest for stale clock, got %s", interest)
	}
	if pool.LastAccrual != 1000 {
		t.Fatalf("clock moved backwards: %d", pool.LastAccrual)
	}
}

func TestAccruePropagatesRateCeiling(t *testing.T) {
	pool := NewDebtPool()
	pool.AddDebt(big.NewInt(1000))
	pool.LastAccrual = 1

	curve := flatCurve(big.NewRat(1, 10))
	curve.MaxRate = big.NewRat(1, 100)
	_, err := pool.Accrue(curve, 2, big.NewInt(1000), 0)
	if !errors.Is(err, ErrRateCeiling) {
		t.Fatalf("expected rate ceiling, got %v", err)
	}
}
