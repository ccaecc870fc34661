package leverage

import (
	"math/big"
	"sync/atomic"

	"leverfarm/core/types"
	"leverfarm/crypto"
	"leverfarm/native/common"
	"leverfarm/observability/metrics"
)

// Engine orchestrates the work and kill settlement protocols, tying the debt
// pool, position ledger and risk engine to the external worker and token
// custody collaborators. Every call runs against a staged copy of state and
// commits only on full success.
type Engine struct {
	state            EngineState
	poolAddress      crypto.Address
	curve            *InterestCurve
	policy           PolicyView
	risk             *RiskEngine
	workers          map[string]Worker
	reserveFactorBps uint64
	pauses           common.PauseView
	inCall           atomic.Bool
}

// NewEngine constructs an engine whose pool treasury lives at poolAddr.
func NewEngine(poolAddr crypto.Address) *Engine {
	return &Engine{
		poolAddress: poolAddr,
		workers:     make(map[string]Worker),
		curve:       DefaultInterestCurve.Clone(),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state EngineState) { e.state = state }

// SetInterestCurve configures the borrow-rate curve used during accrual.
func (e *Engine) SetInterestCurve(curve *InterestCurve) {
	if e == nil {
		return
	}
	e.curve = curve.Clone()
}

// SetPolicy wires the per-worker risk policy surface.
func (e *Engine) SetPolicy(policy PolicyView) {
	if e == nil {
		return
	}
	e.policy = policy
	e.risk = NewRiskEngine(policy)
}

// SetReserveFactor wires the basis points of accrued interest routed to the
// pool reserve.
func (e *Engine) SetReserveFactor(bps uint64) {
	if e == nil {
		return
	}
	e.reserveFactorBps = bps
}

func (e *Engine) SetPauses(p common.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// RegisterWorker installs the in-process implementation for a worker
// address. Policy registration is separate and both must be present before
// the worker can be used.
func (e *Engine) RegisterWorker(w Worker) {
	if e == nil || w == nil {
		return
	}
	e.workers[addrKey(w.Address())] = w
}

// PoolAddress returns the pool treasury address.
func (e *Engine) PoolAddress() crypto.Address {
	if e == nil {
		return crypto.Address{}
	}
	return e.poolAddress
}

// The settlement engine is single-flight: control leaves its trust boundary
// only at the worker call, and a worker calling back in must be rejected.
func (e *Engine) acquire() bool { return e.inCall.CompareAndSwap(false, true) }
func (e *Engine) release()     { e.inCall.Store(false) }

func (e *Engine) worker(addr crypto.Address) (Worker, WorkerPolicy, error) {
	if e.policy == nil || !e.policy.IsWorker(addr) {
		return nil, WorkerPolicy{}, ErrUnknownWorker
	}
	policy, err := e.policy.WorkerPolicy(addr)
	if err != nil {
		return nil, WorkerPolicy{}, err
	}
	w, ok := e.workers[addrKey(addr)]
	if !ok {
		return nil, WorkerPolicy{}, ErrUnknownWorker
	}
	policy.ensure()
	return w, policy, nil
}

func loadAccount(s WorkerState, addr crypto.Address) (*types.Account, error) {
	acc, err := s.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = types.NewAccount()
		if err := s.PutAccount(addr, acc); err != nil {
			return nil, err
		}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc, nil
}

func creditAccount(s WorkerState, addr crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	acc, err := loadAccount(s, addr)
	if err != nil {
		return err
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return s.PutAccount(addr, acc)
}

func debitAccount(s WorkerState, addr crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	acc, err := loadAccount(s, addr)
	if err != nil {
		return err
	}
	if acc.Balance.Cmp(amount) < 0 {
		return errInsufficientBal
	}
	acc.Balance = new(big.Int).Sub(acc.Balance, amount)
	return s.PutAccount(addr, acc)
}

func transfer(s WorkerState, from, to crypto.Address, amount *big.Int) error {
	if err := debitAccount(s, from, amount); err != nil {
		return err
	}
	return creditAccount(s, to, amount)
}

// lendableCash returns the pool treasury balance minus the reserve, floored
// at zero. The reserve backs lender losses and is never lent out.
func lendableCash(poolAcc *types.Account, pool *DebtPool) *big.Int {
	cash := new(big.Int).Sub(poolAcc.Balance, pool.Reserve)
	if cash.Sign() < 0 {
		return big.NewInt(0)
	}
	return cash
}

// Deposit supplies base asset into the lending pool and mints supply shares
// at the pool's current value per share. The minted share amount is
// returned.
func (e *Engine) Deposit(now uint64, lender crypto.Address, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	if !e.acquire() {
		return nil, ErrReentrant
	}
	defer e.release()

	s := newStagedState(e.state)
	pool, err := s.GetPool()
	if err != nil {
		return nil, err
	}
	poolAcc, err := loadAccount(s, e.poolAddress)
	if err != nil {
		return nil, err
	}
	cash := lendableCash(poolAcc, pool)
	interest, err := pool.Accrue(e.curve, now, cash, e.reserveFactorBps)
	if err != nil {
		return nil, err
	}
	// The reserve cut taken by accrual is not supplier value, so shares are
	// priced against the post-accrual cash snapshot.
	cash = lendableCash(poolAcc, pool)

	totalValue := new(big.Int).Add(cash, pool.TotalDebtValue)
	minted := new(big.Int)
	if pool.TotalSupplyShares.Sign() == 0 || totalValue.Sign() == 0 {
		minted.Set(amount)
	} else {
		minted = mulDiv(amount, pool.TotalSupplyShares, totalValue)
		if minted.Sign() == 0 {
			return nil, ErrDepositTooSmall
		}
	}

	if err := transfer(s, lender, e.poolAddress, amount); err != nil {
		return nil, err
	}

	sup, err := s.GetSupplyAccount(lender)
	if err != nil {
		return nil, err
	}
	if sup == nil {
		sup = &SupplyAccount{Address: lender}
	}
	sup.ensure()
	sup.Shares = new(big.Int).Add(sup.Shares, minted)
	pool.TotalSupplyShares = new(big.Int).Add(pool.TotalSupplyShares, minted)

	if err := s.PutSupplyAccount(sup); err != nil {
		return nil, err
	}
	if err := s.PutPool(pool); err != nil {
		return nil, err
	}
	if err := s.Commit(); err != nil {
		return nil, err
	}

	m := metrics.Leverage()
	m.ObserveDeposit(toFloat(amount))
	m.ObserveAccrual(toFloat(interest))
	m.SetReserve(toFloat(pool.Reserve))
	return minted, nil
}

// Redeem burns supply shares and releases the proportional pool value back
// to the lender. The redeemed amount is returned.
func (e *Engine) Redeem(now uint64, lender crypto.Address, shares *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	if !e.acquire() {
		return nil, ErrReentrant
	}
	defer e.release()

	s := newStagedState(e.state)
	pool, err := s.GetPool()
	if err != nil {
		return nil, err
	}
	poolAcc, err := loadAccount(s, e.poolAddress)
	if err != nil {
		return nil, err
	}
	cash := lendableCash(poolAcc, pool)
	if _, err := pool.Accrue(e.curve, now, cash, e.reserveFactorBps); err != nil {
		return nil, err
	}
	cash = lendableCash(poolAcc, pool)
	if pool.TotalSupplyShares.Sign() == 0 {
		return nil, errInsufficientCash
	}

	sup, err := s.GetSupplyAccount(lender)
	if err != nil {
		return nil, err
	}
	if sup == nil {
		sup = &SupplyAccount{Address: lender}
	}
	sup.ensure()
	if sup.Shares.Cmp(shares) < 0 {
		return nil, errInsufficientBal
	}

	totalValue := new(big.Int).Add(cash, pool.TotalDebtValue)
	amount := mulDiv(shares, totalValue, pool.TotalSupplyShares)
	if amount.Cmp(cash) > 0 {
		return nil, errInsufficientCash
	}

	sup.Shares = new(big.Int).Sub(sup.Shares, shares)
	pool.TotalSupplyShares = new(big.Int).Sub(pool.TotalSupplyShares, shares)
	if err := transfer(s, e.poolAddress, lender, amount); err != nil {
		return nil, err
	}

	if err := s.PutSupplyAccount(sup); err != nil {
		return nil, err
	}
	if err := s.PutPool(pool); err != nil {
		return nil, err
	}
	if err := s.Commit(); err != nil {
		return nil, err
	}
	return amount, nil
}

// Work opens or modifies a leveraged position: it takes the caller's
// principal into custody, recomputes the position's debt at current value,
// borrows the requested loan, delegates collateral management to the worker
// and settles the balance delta the worker produced. The position id is
// returned (freshly allocated when the sentinel id was passed).
func (e *Engine) Work(now, id uint64, caller, workerAddr crypto.Address, principal, loan *big.Int, data WorkData) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if e.curve == nil {
		return 0, errNilCurve
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if principal == nil || principal.Sign() < 0 || loan == nil || loan.Sign() < 0 {
		return 0, errNegativeAmount
	}
	if !e.acquire() {
		return 0, ErrReentrant
	}
	defer e.release()

	w, policy, err := e.worker(workerAddr)
	if err != nil {
		return 0, err
	}

	s := newStagedState(e.state)
	pool, err := s.GetPool()
	if err != nil {
		return 0, err
	}
	poolAcc, err := loadAccount(s, e.poolAddress)
	if err != nil {
		return 0, err
	}

	// Accrue against the pre-intake cash snapshot so the incoming principal
	// cannot distort the utilization at the instant of deposit.
	preCash := lendableCash(poolAcc, pool)
	if err := transfer(s, caller, e.poolAddress, principal); err != nil {
		return 0, err
	}
	interest, err := pool.Accrue(e.curve, now, preCash, e.reserveFactorBps)
	if err != nil {
		return 0, err
	}

	pos, err := openOrLoadPosition(s, id, caller, workerAddr)
	if err != nil {
		return 0, err
	}

	// Remove-then-readd: express the position's debt at the current
	// exchange ratio before layering the new loan on top. Stale shares
	// must never lock in a stale price.
	existingDebt := big.NewInt(0)
	if pos.DebtShare.Sign() > 0 {
		existingDebt, err = pool.RemoveDebt(pos.DebtShare)
		if err != nil {
			return 0, err
		}
		pos.DebtShare = big.NewInt(0)
	}
	debt := new(big.Int).Add(existingDebt, loan)

	if loan.Sign() > 0 && !policy.AcceptDebt {
		return 0, ErrDebtNotAccepted
	}

	principalOwed := new(big.Int).Add(pos.Principal, loan)
	if principalOwed.Cmp(debt) > 0 {
		// Recorded principal can never exceed the owed value; clamping
		// here keeps the interest split well defined even if an earlier
		// partial repayment left the counter ahead.
		principalOwed = new(big.Int).Set(debt)
	}

	available := new(big.Int).Sub(lendableCash(poolAcc, pool), principal)
	if loan.Cmp(available) > 0 {
		return 0, errInsufficientCash
	}

	// Delegate to the worker and measure what came back as a balance
	// delta; worker-reported numbers are never trusted.
	outlay := new(big.Int).Add(principal, loan)
	if err := transfer(s, e.poolAddress, workerAddr, outlay); err != nil {
		return 0, err
	}
	before := new(big.Int).Set(poolAcc.Balance)
	if err := w.Work(s, now, pos.ID, caller, debt, data); err != nil {
		return 0, err
	}
	back := new(big.Int).Sub(poolAcc.Balance, before)
	if back.Sign() < 0 {
		return 0, invariantErr("worker reduced pool custody balance")
	}

	// Repayment retires accrued interest before principal so the principal
	// counter keeps meaning across partial close-outs. The reserve cut on
	// interest was already taken at accrual time.
	reduced := minInt(debt, back)
	if reduced.Sign() > 0 {
		owedInterest := new(big.Int).Sub(debt, principalOwed)
		interestPaid := minInt(owedInterest, reduced)
		principalPaid := new(big.Int).Sub(reduced, interestPaid)
		principalOwed = new(big.Int).Sub(principalOwed, principalPaid)
		debt = new(big.Int).Sub(debt, reduced)
	}

	if debt.Sign() > 0 {
		if policy.MinDebtSize != nil && debt.Cmp(policy.MinDebtSize) < 0 {
			return 0, ErrDebtTooSmall
		}
		if err := e.risk.CanOpen(s, w, now, pos.ID, debt); err != nil {
			return 0, err
		}
		pos.DebtShare = pool.AddDebt(debt)
		pos.Principal = minInt(principalOwed, debt)
	} else {
		pos.DebtShare = big.NewInt(0)
		pos.Principal = big.NewInt(0)
	}

	surplus := new(big.Int).Sub(back, reduced)
	if surplus.Sign() > 0 {
		if err := transfer(s, e.poolAddress, caller, surplus); err != nil {
			return 0, err
		}
	}

	if err := e.settleRecords(s, w, pos, principal, surplus); err != nil {
		return 0, err
	}
	if err := s.PutPosition(pos); err != nil {
		return 0, err
	}
	if err := s.PutPool(pool); err != nil {
		return 0, err
	}
	if err := s.Commit(); err != nil {
		return 0, err
	}

	m := metrics.Leverage()
	m.ObserveWork()
	m.ObserveAccrual(toFloat(interest))
	m.SetReserve(toFloat(pool.Reserve))
	return pos.ID, nil
}

// Kill liquidates an undercollateralized position. The worker forces all
// collateral back into base asset; the clearance fee is split between the
// liquidator and the reserve, the remainder repays debt, and anything left
// over goes to the position owner. The liquidator prize is returned.
func (e *Engine) Kill(now, id uint64, caller crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.curve == nil {
		return nil, errNilCurve
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if !e.acquire() {
		return nil, ErrReentrant
	}
	defer e.release()

	s := newStagedState(e.state)
	pos, err := s.GetPosition(id)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, ErrPositionNotFound
	}
	pos.ensure()

	w, policy, err := e.worker(pos.Worker)
	if err != nil {
		return nil, err
	}
	if caller.Equal(pos.Owner) && !policy.AllowOwnerKill {
		return nil, ErrOwnerKill
	}

	pool, err := s.GetPool()
	if err != nil {
		return nil, err
	}
	poolAcc, err := loadAccount(s, e.poolAddress)
	if err != nil {
		return nil, err
	}
	cash := lendableCash(poolAcc, pool)
	if _, err := pool.Accrue(e.curve, now, cash, e.reserveFactorBps); err != nil {
		return nil, err
	}

	debt := big.NewInt(0)
	if pos.DebtShare.Sign() > 0 {
		debt, err = pool.RemoveDebt(pos.DebtShare)
		if err != nil {
			return nil, err
		}
		pos.DebtShare = big.NewInt(0)
	}
	if debt.Sign() == 0 {
		return nil, ErrNoDebt
	}

	if err := e.risk.CanLiquidate(s, w, now, pos.ID, debt); err != nil {
		return nil, err
	}

	before := new(big.Int).Set(poolAcc.Balance)
	if err := w.Liquidate(s, now, pos.ID); err != nil {
		return nil, err
	}
	back := new(big.Int).Sub(poolAcc.Balance, before)
	if back.Sign() < 0 {
		return nil, invariantErr("worker reduced pool custody balance")
	}

	clearanceFee := bpsShare(back, policy.KillBps)
	reserveCut := bpsShare(clearanceFee, policy.SecurityFactorBps)
	prize := new(big.Int).Sub(clearanceFee, reserveCut)
	rest := new(big.Int).Sub(back, clearanceFee)

	reduced := minInt(debt, rest)
	remaining := new(big.Int).Sub(debt, reduced)

	principalOwed := minInt(pos.Principal, debt)
	if remaining.Sign() > 0 {
		// The protocol does not guarantee full recovery in a single
		// liquidation; the position survives with the residual debt.
		pos.DebtShare = pool.AddDebt(remaining)
		pos.Principal = minInt(principalOwed, remaining)
	} else {
		pos.Principal = big.NewInt(0)
	}

	if prize.Sign() > 0 {
		if err := transfer(s, e.poolAddress, caller, prize); err != nil {
			return nil, err
		}
	}
	if reserveCut.Sign() > 0 {
		// Fee cash stays in the treasury; only the reserve bookkeeping
		// moves.
		pool.Reserve = new(big.Int).Add(pool.Reserve, reserveCut)
	}
	left := new(big.Int).Sub(rest, reduced)
	if left.Sign() > 0 {
		if err := transfer(s, e.poolAddress, pos.Owner, left); err != nil {
			return nil, err
		}
	}

	if err := e.settleRecords(s, w, pos, nil, left); err != nil {
		return nil, err
	}
	if err := s.PutPosition(pos); err != nil {
		return nil, err
	}
	if err := s.PutPool(pool); err != nil {
		return nil, err
	}
	if err := s.Commit(); err != nil {
		return nil, err
	}

	m := metrics.Leverage()
	m.ObserveKill(toFloat(back))
	m.SetReserve(toFloat(pool.Reserve))
	return prize, nil
}

// settleRecords updates the cumulative deposit/withdraw counters for the
// position's (owner, worker) pair and resets them once the worker reports no
// residual collateral shares.
func (e *Engine) settleRecords(s *stagedState, w Worker, pos *Position, deposited, withdrawn *big.Int) error {
	rec, err := s.GetRecord(pos.Owner, pos.Worker)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &PositionRecord{Owner: pos.Owner, Worker: pos.Worker}
	}
	rec.ensure()
	if deposited != nil && deposited.Sign() > 0 {
		rec.TotalDeposited = new(big.Int).Add(rec.TotalDeposited, deposited)
	}
	if withdrawn != nil && withdrawn.Sign() > 0 {
		rec.TotalWithdrawn = new(big.Int).Add(rec.TotalWithdrawn, withdrawn)
	}
	shares, err := w.Shares(s, pos.ID)
	if err != nil {
		return err
	}
	if shares.Sign() == 0 && pos.DebtShare.Sign() == 0 {
		rec.reset()
	}
	return s.PutRecord(rec)
}

// Position returns a copy of the stored position.
func (e *Engine) Position(id uint64) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pos, err := e.state.GetPosition(id)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, ErrPositionNotFound
	}
	pos = pos.Clone()
	pos.ensure()
	return pos, nil
}

// PositionDebt converts a position's debt share to its currently owed value
// without accruing; callers wanting an up-to-date figure accrue first via a
// settlement call.
func (e *Engine) PositionDebt(id uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pos, err := e.state.GetPosition(id)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, ErrPositionNotFound
	}
	pool, err := e.state.GetPool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return big.NewInt(0), nil
	}
	return pool.ShareToValue(pos.DebtShare), nil
}

// PoolSnapshot returns the current pool totals and the lendable cash.
func (e *Engine) PoolSnapshot() (*DebtPool, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	pool, err := e.state.GetPool()
	if err != nil {
		return nil, nil, err
	}
	if pool == nil {
		pool = NewDebtPool()
	}
	acc, err := e.state.GetAccount(e.poolAddress)
	if err != nil {
		return nil, nil, err
	}
	if acc == nil {
		acc = types.NewAccount()
	}
	return pool.Clone(), lendableCash(acc, pool), nil
}

func toFloat(x *big.Int) float64 {
	if x == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(x).Float64()
	return f
}
