package leverage

import (
	"fmt"
	"math/big"

	"leverfarm/crypto"
)

// WorkKind selects the collateral action a worker performs during a work
// call.
type WorkKind uint8

const (
	// WorkAddCollateral converts every base-asset unit delivered to the
	// worker into collateral for the position.
	WorkAddCollateral WorkKind = iota
	// WorkRemoveShares sells the given collateral shares back into base
	// asset and returns the proceeds to pool custody.
	WorkRemoveShares
)

// WorkData is the strategy payload forwarded untouched to the worker.
type WorkData struct {
	Kind WorkKind
	// Shares is the share amount for WorkRemoveShares; nil removes all.
	Shares *big.Int
}

// Worker is the capability interface for strategy modules. Workers are
// trusted to move tokens inside the shared state but never trusted to report
// amounts; the settlement engine measures balance deltas itself.
type Worker interface {
	// Address is the worker's custody address inside the ledger.
	Address() crypto.Address
	// Health appraises the position's collateral in base-asset terms.
	Health(s WorkerState, now, id uint64) (*big.Int, error)
	// Work performs strategy-specific collateral management for the
	// position, leaving any base-asset change at the pool treasury.
	Work(s WorkerState, now, id uint64, owner crypto.Address, debt *big.Int, data WorkData) error
	// Liquidate forces the position's collateral back into base asset at
	// the pool treasury.
	Liquidate(s WorkerState, now, id uint64) error
	// Shares reports the residual collateral share balance.
	Shares(s WorkerState, id uint64) (*big.Int, error)
}

func loadWorkerBook(s WorkerState, worker crypto.Address, id uint64) (*WorkerBook, error) {
	book, err := s.GetWorkerBook(worker, id)
	if err != nil {
		return nil, err
	}
	if book == nil {
		book = &WorkerBook{Worker: worker, PositionID: id}
	}
	book.ensure()
	return book, nil
}

// PooledVaultWorker holds single-asset collateral priced through the oracle.
// Incoming base asset is swapped with an external venue into the collateral
// asset; removals swap back and pay the proceeds to the pool treasury.
type PooledVaultWorker struct {
	addr        crypto.Address
	payback     crypto.Address
	oracle      PriceOracle
	baseSymbol  string
	assetSymbol string
	maxPriceAge uint64
}

// NewPooledVaultWorker constructs a vault worker paying proceeds back to the
// given pool treasury address.
func NewPooledVaultWorker(addr, payback crypto.Address, oracle PriceOracle, baseSymbol, assetSymbol string, maxPriceAge uint64) *PooledVaultWorker {
	return &PooledVaultWorker{
		addr:        addr,
		payback:     payback,
		oracle:      oracle,
		baseSymbol:  baseSymbol,
		assetSymbol: assetSymbol,
		maxPriceAge: maxPriceAge,
	}
}

func (w *PooledVaultWorker) Address() crypto.Address { return w.addr }

func (w *PooledVaultWorker) price(now uint64) (*big.Int, error) {
	return freshPrice(w.oracle, w.assetSymbol, w.baseSymbol, now, w.maxPriceAge)
}

func (w *PooledVaultWorker) Health(s WorkerState, now, id uint64) (*big.Int, error) {
	book, err := loadWorkerBook(s, w.addr, id)
	if err != nil {
		return nil, err
	}
	if book.Shares.Sign() == 0 {
		return big.NewInt(0), nil
	}
	rate, err := w.price(now)
	if err != nil {
		return nil, err
	}
	return mulDiv(book.Shares, rate, wad), nil
}

func (w *PooledVaultWorker) Work(s WorkerState, now, id uint64, _ crypto.Address, _ *big.Int, data WorkData) error {
	book, err := loadWorkerBook(s, w.addr, id)
	if err != nil {
		return err
	}
	funds, err := loadAccount(s, w.addr)
	if err != nil {
		return err
	}

	switch data.Kind {
	case WorkAddCollateral:
		if funds.Balance.Sign() > 0 {
			rate, err := w.price(now)
			if err != nil {
				return err
			}
			units := mulDiv(funds.Balance, wad, rate)
			book.Shares = new(big.Int).Add(book.Shares, units)
			funds.Balance = big.NewInt(0)
		}
	case WorkRemoveShares:
		remove := data.Shares
		if remove == nil {
			remove = book.Shares
		}
		if remove.Sign() < 0 || remove.Cmp(book.Shares) > 0 {
			return collaboratorErr("vault worker: share removal exceeds balance")
		}
		if remove.Sign() > 0 {
			rate, err := w.price(now)
			if err != nil {
				return err
			}
			proceeds := mulDiv(remove, rate, wad)
			book.Shares = new(big.Int).Sub(book.Shares, remove)
			if err := creditAccount(s, w.payback, proceeds); err != nil {
				return err
			}
		}
		// Idle base asset left with the worker goes back to the pool for
		// the settlement engine to account.
		if funds.Balance.Sign() > 0 {
			if err := creditAccount(s, w.payback, funds.Balance); err != nil {
				return err
			}
			funds.Balance = big.NewInt(0)
		}
	default:
		return collaboratorErr(fmt.Sprintf("vault worker: unknown work kind %d", data.Kind))
	}

	if err := s.PutAccount(w.addr, funds); err != nil {
		return err
	}
	return s.PutWorkerBook(book)
}

func (w *PooledVaultWorker) Liquidate(s WorkerState, now, id uint64) error {
	book, err := loadWorkerBook(s, w.addr, id)
	if err != nil {
		return err
	}
	if book.Shares.Sign() > 0 {
		rate, err := w.price(now)
		if err != nil {
			return err
		}
		proceeds := mulDiv(book.Shares, rate, wad)
		book.Shares = big.NewInt(0)
		if err := creditAccount(s, w.payback, proceeds); err != nil {
			return err
		}
	}
	return s.PutWorkerBook(book)
}

func (w *PooledVaultWorker) Shares(s WorkerState, id uint64) (*big.Int, error) {
	book, err := loadWorkerBook(s, w.addr, id)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(book.Shares), nil
}

// FarmingWorker keeps an LP-style two-leg exposure: half of every deposit
// stays in the base asset, the other half is swapped into the farm asset.
// Health prices both legs; shares are LP units minted at entry value.
type FarmingWorker struct {
	addr        crypto.Address
	payback     crypto.Address
	oracle      PriceOracle
	baseSymbol  string
	farmSymbol  string
	maxPriceAge uint64
}

// NewFarmingWorker constructs a farming worker paying proceeds back to the
// given pool treasury address.
func NewFarmingWorker(addr, payback crypto.Address, oracle PriceOracle, baseSymbol, farmSymbol string, maxPriceAge uint64) *FarmingWorker {
	return &FarmingWorker{
		addr:        addr,
		payback:     payback,
		oracle:      oracle,
		baseSymbol:  baseSymbol,
		farmSymbol:  farmSymbol,
		maxPriceAge: maxPriceAge,
	}
}

func (w *FarmingWorker) Address() crypto.Address { return w.addr }

func (w *FarmingWorker) price(now uint64) (*big.Int, error) {
	return freshPrice(w.oracle, w.farmSymbol, w.baseSymbol, now, w.maxPriceAge)
}

func (w *FarmingWorker) Health(s WorkerState, now, id uint64) (*big.Int, error) {
	book, err := loadWorkerBook(s, w.addr, id)
	if err != nil {
		return nil, err
	}
	if book.Shares.Sign() == 0 {
		return big.NewInt(0), nil
	}
	rate, err := w.price(now)
	if err != nil {
		return nil, err
	}
	health := new(big.Int).Add(book.BaseLeg, mulDiv(book.FarmLeg, rate, wad))
	return health, nil
}

func (w *FarmingWorker) Work(s WorkerState, now, id uint64, _ crypto.Address, _ *big.Int, data WorkData) error {
	book, err := loadWorkerBook(s, w.addr, id)
	if err != nil {
		return err
	}
	funds, err := loadAccount(s, w.addr)
	if err != nil {
		return err
	}

	switch data.Kind {
	case WorkAddCollateral:
		if funds.Balance.Sign() > 0 {
			rate, err := w.price(now)
			if err != nil {
				return err
			}
			amount := funds.Balance
			baseHalf := new(big.Int).Rsh(amount, 1)
			farmSpend := new(big.Int).Sub(amount, baseHalf)
			farmUnits := mulDiv(farmSpend, wad, rate)
			book.BaseLeg = new(big.Int).Add(book.BaseLeg, baseHalf)
			book.FarmLeg = new(big.Int).Add(book.FarmLeg, farmUnits)
			book.Shares = new(big.Int).Add(book.Shares, amount)
			funds.Balance = big.NewInt(0)
		}
	case WorkRemoveShares:
		remove := data.Shares
		if remove == nil {
			remove = book.Shares
		}
		if remove.Sign() < 0 || remove.Cmp(book.Shares) > 0 {
			return collaboratorErr("farming worker: share removal exceeds balance")
		}
		if remove.Sign() > 0 {
			rate, err := w.price(now)
			if err != nil {
				return err
			}
			baseOut := mulDiv(book.BaseLeg, remove, book.Shares)
			farmOut := mulDiv(book.FarmLeg, remove, book.Shares)
			proceeds := new(big.Int).Add(baseOut, mulDiv(farmOut, rate, wad))
			book.BaseLeg = new(big.Int).Sub(book.BaseLeg, baseOut)
			book.FarmLeg = new(big.Int).Sub(book.FarmLeg, farmOut)
			book.Shares = new(big.Int).Sub(book.Shares, remove)
			if err := creditAccount(s, w.payback, proceeds); err != nil {
				return err
			}
		}
		if funds.Balance.Sign() > 0 {
			if err := creditAccount(s, w.payback, funds.Balance); err != nil {
				return err
			}
			funds.Balance = big.NewInt(0)
		}
	default:
		return collaboratorErr(fmt.Sprintf("farming worker: unknown work kind %d", data.Kind))
	}

	if err := s.PutAccount(w.addr, funds); err != nil {
		return err
	}
	return s.PutWorkerBook(book)
}

func (w *FarmingWorker) Liquidate(s WorkerState, now, id uint64) error {
	book, err := loadWorkerBook(s, w.addr, id)
	if err != nil {
		return err
	}
	if book.Shares.Sign() > 0 {
		rate, err := w.price(now)
		if err != nil {
			return err
		}
		proceeds := new(big.Int).Add(book.BaseLeg, mulDiv(book.FarmLeg, rate, wad))
		book.BaseLeg = big.NewInt(0)
		book.FarmLeg = big.NewInt(0)
		book.Shares = big.NewInt(0)
		if err := creditAccount(s, w.payback, proceeds); err != nil {
			return err
		}
	}
	return s.PutWorkerBook(book)
}

func (w *FarmingWorker) Shares(s WorkerState, id uint64) (*big.Int, error) {
	book, err := loadWorkerBook(s, w.addr, id)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(book.Shares), nil
}
