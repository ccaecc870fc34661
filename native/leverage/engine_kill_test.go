package leverage

import (
	"errors"
	"math/big"
	"testing"

	"leverfarm/crypto"
)

// openUnderwater opens a 500/1000 position at par and then drops the oracle
// price so the position sits below the kill threshold.
func openUnderwater(t *testing.T, f *workFixture, priceNum, priceDen int64) uint64 {
	t.Helper()
	f.state.fund(f.caller, 500)
	id, err := f.engine.Work(1, NewPositionID, f.caller, f.worker, big.NewInt(500), big.NewInt(1000), WorkData{Kind: WorkAddCollateral})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	drop := new(big.Int).Mul(wad, big.NewInt(priceNum))
	drop.Quo(drop, big.NewInt(priceDen))
	f.oracle.SetPrice("vault", "base", drop, 1)
	return id
}

func TestKillSettlesFeeSplitAndRefund(t *testing.T) {
	f := newWorkFixture(t, defaultTestPolicy())
	// 1500 collateral at 80% of entry price appraises at 1200: below the
	// 80% kill bound against 1000 debt.
	id := openUnderwater(t, f, 4, 5)
	liquidator := makeAddress(crypto.AccountPrefix, 0x05)

	prize, err := f.engine.Kill(1, id, liquidator)
	if err != nil {
		t.Fatalf("kill: %v", err)
	}

	// Proceeds 1200: 5% clearance fee is 60, of which 40% (24) goes to the
	// reserve and 36 to the liquidator; 1000 repays debt and 140 returns
	// to the owner.
	if prize.Cmp(big.NewInt(36)) != 0 {
		t.Fatalf("expected prize 36, got %s", prize)
	}
	if got := f.state.balance(liquidator); got.Cmp(big.NewInt(36)) != 0 {
		t.Fatalf("liquidator balance %s", got)
	}
	if got := f.state.balance(f.caller); got.Cmp(big.NewInt(140)) != 0 {
		t.Fatalf("owner refund %s", got)
	}
	if f.state.pool.Reserve.Cmp(big.NewInt(24)) != 0 {
		t.Fatalf("reserve %s", f.state.pool.Reserve)
	}

	pos := f.state.positions[id]
	if pos.DebtShare.Sign() != 0 || pos.Principal.Sign() != 0 {
		t.Fatalf("debt not cleared: share %s principal %s", pos.DebtShare, pos.Principal)
	}
	if f.state.pool.TotalDebtValue.Sign() != 0 {
		t.Fatalf("pool debt remains: %s", f.state.pool.TotalDebtValue)
	}
	book := f.state.books[bookKey(f.worker, id)]
	if book.Shares.Sign() != 0 {
		t.Fatalf("collateral not cleared: %s", book.Shares)
	}

	// Treasury conservation: 100000 start, 500 in, 1500 out, 1200 back,
	// 36 prize and 140 refund out.
	if got := f.state.balance(f.pool); got.Cmp(big.NewInt(100_024)) != 0 {
		t.Fatalf("pool balance %s", got)
	}
}

func TestKillPartialRecoveryKeepsResidualDebt(t *testing.T) {
	f := newWorkFixture(t, defaultTestPolicy())
	// 1500 collateral at 40% of entry appraises at 600, well short of the
	// 1000 debt.
	id := openUnderwater(t, f, 2, 5)
	liquidator := makeAddress(crypto.AccountPrefix, 0x05)

	prize, err := f.engine.Kill(1, id, liquidator)
	if err != nil {
		t.Fatalf("kill: %v", err)
	}

	// Proceeds 600: fee 30 (reserve 12, prize 18), 570 repays debt and
	// 430 stays on the position as residual debt.
	if prize.Cmp(big.NewInt(18)) != 0 {
		t.Fatalf("expected prize 18, got %s", prize)
	}
	if got := f.state.balance(f.caller); got.Sign() != 0 {
		t.Fatalf("owner refunded on shortfall: %s", got)
	}
	pos := f.state.positions[id]
	if pos.DebtShare.Sign() == 0 {
		t.Fatalf("expected residual debt shares")
	}
	if f.state.pool.TotalDebtValue.Cmp(big.NewInt(430)) != 0 {
		t.Fatalf("expected residual pool debt 430, got %s", f.state.pool.TotalDebtValue)
	}
	if pos.Principal.Cmp(big.NewInt(430)) != 0 {
		t.Fatalf("expected principal clamped to 430, got %s", pos.Principal)
	}
}

func TestKillRejectsHealthyPosition(t *testing.T) {
	f := newWorkFixture(t, defaultTestPolicy())
	f.state.fund(f.caller, 500)
	id, err := f.engine.Work(1, NewPositionID, f.caller, f.worker, big.NewInt(500), big.NewInt(1000), WorkData{Kind: WorkAddCollateral})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	liquidator := makeAddress(crypto.AccountPrefix, 0x05)
	_, err = f.engine.Kill(1, id, liquidator)
	if !errors.Is(err, ErrPositionHealthy) {
		t.Fatalf("expected healthy rejection, got %v", err)
	}
	// The failed kill must not move balances or debt.
	if f.state.pool.TotalDebtValue.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("pool debt changed: %s", f.state.pool.TotalDebtValue)
	}
	if got := f.state.balance(liquidator); got.Sign() != 0 {
		t.Fatalf("liquidator paid on abort: %s", got)
	}
}

func TestKillOwnerRequiresPolicy(t *testing.T) {
	f := newWorkFixture(t, defaultTestPolicy())
	id := openUnderwater(t, f, 4, 5)

	_, err := f.engine.Kill(1, id, f.caller)
	if !errors.Is(err, ErrOwnerKill) {
		t.Fatalf("expected owner kill rejection, got %v", err)
	}

	policy := defaultTestPolicy()
	policy.AllowOwnerKill = true
	registry := NewPolicyRegistry()
	registry.Register(f.worker, policy)
	f.engine.SetPolicy(registry)

	prize, err := f.engine.Kill(1, id, f.caller)
	if err != nil {
		t.Fatalf("owner kill with policy: %v", err)
	}
	// Owner collects both the prize and the refund.
	want := big.NewInt(36 + 140)
	if got := f.state.balance(f.caller); got.Cmp(want) != 0 {
		t.Fatalf("owner balance %s want %s", got, want)
	}
	if prize.Cmp(big.NewInt(36)) != 0 {
		t.Fatalf("prize %s", prize)
	}
}

func TestKillRejectsDebtFreePosition(t *testing.T) {
	f := newWorkFixture(t, defaultTestPolicy())
	f.state.fund(f.caller, 500)
	id, err := f.engine.Work(1, NewPositionID, f.caller, f.worker, big.NewInt(500), big.NewInt(0), WorkData{Kind: WorkAddCollateral})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	liquidator := makeAddress(crypto.AccountPrefix, 0x05)
	if _, err := f.engine.Kill(1, id, liquidator); !errors.Is(err, ErrNoDebt) {
		t.Fatalf("expected no-debt rejection, got %v", err)
	}
}

func TestKillUnknownPosition(t *testing.T) {
	f := newWorkFixture(t, defaultTestPolicy())
	liquidator := makeAddress(crypto.AccountPrefix, 0x05)
	if _, err := f.engine.Kill(1, 42, liquidator); !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
