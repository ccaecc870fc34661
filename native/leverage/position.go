package leverage

import (
	"math/big"

	"leverfarm/crypto"
)

// NewPositionID is the sentinel callers pass to allocate a fresh position.
const NewPositionID uint64 = 0

// Position is one borrower's leveraged stake with one worker. Ids are
// monotonic and never reused; a fully closed position keeps its id with both
// debt and collateral at zero.
type Position struct {
	ID     uint64
	Owner  crypto.Address
	Worker crypto.Address
	// DebtShare is this position's claim on the pool's aggregate debt.
	DebtShare *big.Int
	// Principal tracks the outstanding non-interest loan portion, used to
	// split repayments between principal and realized interest.
	Principal *big.Int
}

func (p *Position) ensure() {
	if p.DebtShare == nil {
		p.DebtShare = big.NewInt(0)
	}
	if p.Principal == nil {
		p.Principal = big.NewInt(0)
	}
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{ID: p.ID, Owner: p.Owner, Worker: p.Worker}
	if p.DebtShare != nil {
		clone.DebtShare = new(big.Int).Set(p.DebtShare)
	}
	if p.Principal != nil {
		clone.Principal = new(big.Int).Set(p.Principal)
	}
	return clone
}

// PositionRecord keeps cumulative deposit/withdraw counters per
// (owner, worker) pair for external reporting. Counters reset to zero once
// the worker reports no residual collateral shares for the pair's position.
type PositionRecord struct {
	Owner          crypto.Address
	Worker         crypto.Address
	TotalDeposited *big.Int
	TotalWithdrawn *big.Int
}

func (r *PositionRecord) ensure() {
	if r.TotalDeposited == nil {
		r.TotalDeposited = big.NewInt(0)
	}
	if r.TotalWithdrawn == nil {
		r.TotalWithdrawn = big.NewInt(0)
	}
}

// Clone returns a deep copy of the record.
func (r *PositionRecord) Clone() *PositionRecord {
	if r == nil {
		return nil
	}
	clone := &PositionRecord{Owner: r.Owner, Worker: r.Worker}
	if r.TotalDeposited != nil {
		clone.TotalDeposited = new(big.Int).Set(r.TotalDeposited)
	}
	if r.TotalWithdrawn != nil {
		clone.TotalWithdrawn = new(big.Int).Set(r.TotalWithdrawn)
	}
	return clone
}

func (r *PositionRecord) reset() {
	r.TotalDeposited = big.NewInt(0)
	r.TotalWithdrawn = big.NewInt(0)
}

// SupplyAccount holds a lender's share balance in the pool.
type SupplyAccount struct {
	Address crypto.Address
	Shares  *big.Int
}

func (s *SupplyAccount) ensure() {
	if s.Shares == nil {
		s.Shares = big.NewInt(0)
	}
}

// Clone returns a deep copy of the supply account.
func (s *SupplyAccount) Clone() *SupplyAccount {
	if s == nil {
		return nil
	}
	clone := &SupplyAccount{Address: s.Address}
	if s.Shares != nil {
		clone.Shares = new(big.Int).Set(s.Shares)
	}
	return clone
}

// openOrLoadPosition resolves the position a settlement call operates on.
// The sentinel id allocates a fresh position after asserting the caller has
// no open position with the worker; a concrete id must belong to the caller
// and match the worker.
func openOrLoadPosition(s EngineState, id uint64, caller, worker crypto.Address) (*Position, error) {
	if id == NewPositionID {
		if existing, ok, err := s.OpenPositionID(caller, worker); err != nil {
			return nil, err
		} else if ok && existing != 0 {
			return nil, ErrPositionExists
		}
		count, err := s.PositionCount()
		if err != nil {
			return nil, err
		}
		next := count + 1
		if err := s.SetPositionCount(next); err != nil {
			return nil, err
		}
		pos := &Position{ID: next, Owner: caller, Worker: worker}
		pos.ensure()
		if err := s.SetOpenPosition(caller, worker, next); err != nil {
			return nil, err
		}
		return pos, nil
	}

	pos, err := s.GetPosition(id)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, ErrPositionNotFound
	}
	if !pos.Worker.Equal(worker) {
		return nil, ErrPositionMismatch
	}
	if !pos.Owner.Equal(caller) {
		return nil, ErrNotOwner
	}
	pos.ensure()
	return pos, nil
}
