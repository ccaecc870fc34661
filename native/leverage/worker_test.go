package leverage

import (
	"errors"
	"math/big"
	"testing"

	"leverfarm/crypto"
)

func TestFarmingWorkerSplitsLegs(t *testing.T) {
	state := newMockEngineState()
	addr := makeAddress(crypto.ModulePrefix, 0x11)
	payback := makeAddress(crypto.ModulePrefix, 0x01)
	oracle := NewOracleTable()
	// Farm asset trades at 2 base per unit.
	oracle.SetPrice("farm", "base", new(big.Int).Mul(wad, big.NewInt(2)), 1)

	w := NewFarmingWorker(addr, payback, oracle, "base", "farm", 3600)
	state.fund(addr, 1000)

	if err := w.Work(state, 1, 7, crypto.Address{}, nil, WorkData{Kind: WorkAddCollateral}); err != nil {
		t.Fatalf("work: %v", err)
	}
	book := state.books[bookKey(addr, 7)]
	if book.BaseLeg.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("base leg %s", book.BaseLeg)
	}
	if book.FarmLeg.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("farm leg %s", book.FarmLeg)
	}
	if book.Shares.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("lp shares %s", book.Shares)
	}

	health, err := w.Health(state, 1, 7)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("health %s", health)
	}

	// Farm leg doubles in price; health reflects the appreciated leg only.
	oracle.SetPrice("farm", "base", new(big.Int).Mul(wad, big.NewInt(4)), 1)
	health, err = w.Health(state, 1, 7)
	if err != nil {
		t.Fatalf("health after move: %v", err)
	}
	if health.Cmp(big.NewInt(1500)) != 0 {
		t.Fatalf("health after move %s", health)
	}
}

func TestFarmingWorkerProportionalRemoval(t *testing.T) {
	state := newMockEngineState()
	addr := makeAddress(crypto.ModulePrefix, 0x11)
	payback := makeAddress(crypto.ModulePrefix, 0x01)
	oracle := NewOracleTable()
	oracle.SetPrice("farm", "base", new(big.Int).Mul(wad, big.NewInt(2)), 1)

	w := NewFarmingWorker(addr, payback, oracle, "base", "farm", 3600)
	state.fund(addr, 1000)
	if err := w.Work(state, 1, 7, crypto.Address{}, nil, WorkData{Kind: WorkAddCollateral}); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := w.Work(state, 1, 7, crypto.Address{}, nil, WorkData{Kind: WorkRemoveShares, Shares: big.NewInt(500)}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	book := state.books[bookKey(addr, 7)]
	if book.Shares.Cmp(big.NewInt(500)) != 0 || book.BaseLeg.Cmp(big.NewInt(250)) != 0 || book.FarmLeg.Cmp(big.NewInt(125)) != 0 {
		t.Fatalf("unexpected legs after removal: %+v", book)
	}
	// Half of both legs sold: 250 base + 125 farm at 2 base each.
	if got := state.balance(payback); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("payback balance %s", got)
	}
}

func TestWorkerRejectsOversizedRemoval(t *testing.T) {
	state := newMockEngineState()
	addr := makeAddress(crypto.ModulePrefix, 0x11)
	payback := makeAddress(crypto.ModulePrefix, 0x01)
	oracle := NewOracleTable()
	oracle.SetPrice("vault", "base", new(big.Int).Set(wad), 1)

	w := NewPooledVaultWorker(addr, payback, oracle, "base", "vault", 3600)
	state.fund(addr, 100)
	if err := w.Work(state, 1, 7, crypto.Address{}, nil, WorkData{Kind: WorkAddCollateral}); err != nil {
		t.Fatalf("add: %v", err)
	}
	err := w.Work(state, 1, 7, crypto.Address{}, nil, WorkData{Kind: WorkRemoveShares, Shares: big.NewInt(101)})
	if !errors.Is(err, ErrCollaboratorFailure) {
		t.Fatalf("expected collaborator failure, got %v", err)
	}
}

func TestFreshPriceEnforcesStaleness(t *testing.T) {
	oracle := NewOracleTable()
	oracle.SetPrice("vault", "base", new(big.Int).Set(wad), 100)

	if _, err := freshPrice(oracle, "vault", "base", 3700, 3600); err != nil {
		t.Fatalf("within bound: %v", err)
	}
	if _, err := freshPrice(oracle, "vault", "base", 3701, 3600); !errors.Is(err, ErrPriceStale) {
		t.Fatalf("expected stale, got %v", err)
	}
	if _, err := freshPrice(oracle, "missing", "base", 200, 3600); !errors.Is(err, ErrPriceMissing) {
		t.Fatalf("expected missing, got %v", err)
	}
	// A zero bound disables the check entirely.
	if _, err := freshPrice(oracle, "vault", "base", 1_000_000, 0); err != nil {
		t.Fatalf("unbounded: %v", err)
	}
}
