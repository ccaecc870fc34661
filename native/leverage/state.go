package leverage

import (
	"math/big"
	"strconv"

	"leverfarm/core/types"
	"leverfarm/crypto"
)

// WorkerBook is the per-position collateral bookkeeping a worker maintains
// inside the shared state so its effects commit or abort together with the
// settlement call that triggered them.
type WorkerBook struct {
	Worker     crypto.Address
	PositionID uint64
	// Shares is the worker-reported collateral share balance.
	Shares *big.Int
	// BaseLeg and FarmLeg carry the two-sided exposure for LP style
	// workers; single-asset workers leave them at zero.
	BaseLeg *big.Int
	FarmLeg *big.Int
}

func (b *WorkerBook) ensure() {
	if b.Shares == nil {
		b.Shares = big.NewInt(0)
	}
	if b.BaseLeg == nil {
		b.BaseLeg = big.NewInt(0)
	}
	if b.FarmLeg == nil {
		b.FarmLeg = big.NewInt(0)
	}
}

// Clone returns a deep copy of the book.
func (b *WorkerBook) Clone() *WorkerBook {
	if b == nil {
		return nil
	}
	clone := &WorkerBook{Worker: b.Worker, PositionID: b.PositionID}
	if b.Shares != nil {
		clone.Shares = new(big.Int).Set(b.Shares)
	}
	if b.BaseLeg != nil {
		clone.BaseLeg = new(big.Int).Set(b.BaseLeg)
	}
	if b.FarmLeg != nil {
		clone.FarmLeg = new(big.Int).Set(b.FarmLeg)
	}
	return clone
}

// WorkerState is the slice of state a worker may touch while control is
// delegated to it: token custody accounts and its own collateral book.
type WorkerState interface {
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
	GetWorkerBook(worker crypto.Address, id uint64) (*WorkerBook, error)
	PutWorkerBook(book *WorkerBook) error
}

// EngineState is the persistence surface the settlement engine runs against.
// Missing entities are returned as nil without error; writes replace whole
// entities.
type EngineState interface {
	WorkerState

	GetPool() (*DebtPool, error)
	PutPool(pool *DebtPool) error

	GetPosition(id uint64) (*Position, error)
	PutPosition(position *Position) error
	PositionCount() (uint64, error)
	SetPositionCount(count uint64) error
	OpenPositionID(owner, worker crypto.Address) (uint64, bool, error)
	SetOpenPosition(owner, worker crypto.Address, id uint64) error

	GetRecord(owner, worker crypto.Address) (*PositionRecord, error)
	PutRecord(record *PositionRecord) error

	GetSupplyAccount(addr crypto.Address) (*SupplyAccount, error)
	PutSupplyAccount(account *SupplyAccount) error
}

// stagedState buffers every read and write of a settlement call so the whole
// call commits atomically or leaves the base state untouched. Reads clone
// base entities into the stage; all later mutation happens on the staged
// copies; Commit flushes them back in one pass.
type stagedAccount struct {
	addr    crypto.Address
	account *types.Account
}

type stagedIndexEntry struct {
	owner  crypto.Address
	worker crypto.Address
	id     uint64
	loaded bool
	open   bool
	dirty  bool
}

type stagedState struct {
	base EngineState

	pool       *DebtPool
	poolLoaded bool
	count      *uint64
	positions  map[uint64]*Position
	accounts   map[string]*stagedAccount
	records    map[string]*PositionRecord
	supplies   map[string]*SupplyAccount
	books      map[string]*WorkerBook
	openIndex  map[string]*stagedIndexEntry
}

func newStagedState(base EngineState) *stagedState {
	return &stagedState{
		base:      base,
		positions: make(map[uint64]*Position),
		accounts:  make(map[string]*stagedAccount),
		records:   make(map[string]*PositionRecord),
		supplies:  make(map[string]*SupplyAccount),
		books:     make(map[string]*WorkerBook),
		openIndex: make(map[string]*stagedIndexEntry),
	}
}

func (s *stagedState) GetPool() (*DebtPool, error) {
	if s.poolLoaded {
		return s.pool, nil
	}
	pool, err := s.base.GetPool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		pool = NewDebtPool()
	} else {
		pool = pool.Clone()
	}
	pool.ensure()
	s.pool = pool
	s.poolLoaded = true
	return pool, nil
}

func (s *stagedState) PutPool(pool *DebtPool) error {
	s.pool = pool
	s.poolLoaded = true
	return nil
}

func (s *stagedState) GetPosition(id uint64) (*Position, error) {
	if pos, ok := s.positions[id]; ok {
		return pos, nil
	}
	pos, err := s.base.GetPosition(id)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, nil
	}
	pos = pos.Clone()
	s.positions[id] = pos
	return pos, nil
}

func (s *stagedState) PutPosition(position *Position) error {
	if position == nil {
		return nil
	}
	s.positions[position.ID] = position
	return nil
}

func (s *stagedState) PositionCount() (uint64, error) {
	if s.count != nil {
		return *s.count, nil
	}
	count, err := s.base.PositionCount()
	if err != nil {
		return 0, err
	}
	s.count = &count
	return count, nil
}

func (s *stagedState) SetPositionCount(count uint64) error {
	s.count = &count
	return nil
}

func (s *stagedState) OpenPositionID(owner, worker crypto.Address) (uint64, bool, error) {
	key := pairKey(owner, worker)
	if entry, ok := s.openIndex[key]; ok && entry.loaded {
		return entry.id, entry.open, nil
	}
	id, ok, err := s.base.OpenPositionID(owner, worker)
	if err != nil {
		return 0, false, err
	}
	s.openIndex[key] = &stagedIndexEntry{owner: owner, worker: worker, id: id, loaded: true, open: ok}
	return id, ok, nil
}

func (s *stagedState) SetOpenPosition(owner, worker crypto.Address, id uint64) error {
	key := pairKey(owner, worker)
	s.openIndex[key] = &stagedIndexEntry{owner: owner, worker: worker, id: id, loaded: true, open: true, dirty: true}
	return nil
}

func (s *stagedState) GetRecord(owner, worker crypto.Address) (*PositionRecord, error) {
	key := pairKey(owner, worker)
	if rec, ok := s.records[key]; ok {
		return rec, nil
	}
	rec, err := s.base.GetRecord(owner, worker)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	rec = rec.Clone()
	s.records[key] = rec
	return rec, nil
}

func (s *stagedState) PutRecord(record *PositionRecord) error {
	if record == nil {
		return nil
	}
	s.records[pairKey(record.Owner, record.Worker)] = record
	return nil
}

func (s *stagedState) GetSupplyAccount(addr crypto.Address) (*SupplyAccount, error) {
	key := addrKey(addr)
	if acc, ok := s.supplies[key]; ok {
		return acc, nil
	}
	acc, err := s.base.GetSupplyAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, nil
	}
	acc = acc.Clone()
	s.supplies[key] = acc
	return acc, nil
}

func (s *stagedState) PutSupplyAccount(account *SupplyAccount) error {
	if account == nil {
		return nil
	}
	s.supplies[addrKey(account.Address)] = account
	return nil
}

func (s *stagedState) GetAccount(addr crypto.Address) (*types.Account, error) {
	key := addrKey(addr)
	if entry, ok := s.accounts[key]; ok {
		return entry.account, nil
	}
	acc, err := s.base.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, nil
	}
	cloned := &types.Account{Nonce: acc.Nonce, Balance: big.NewInt(0)}
	if acc.Balance != nil {
		cloned.Balance.Set(acc.Balance)
	}
	s.accounts[key] = &stagedAccount{addr: addr, account: cloned}
	return cloned, nil
}

func (s *stagedState) PutAccount(addr crypto.Address, account *types.Account) error {
	if account == nil {
		return nil
	}
	s.accounts[addrKey(addr)] = &stagedAccount{addr: addr, account: account}
	return nil
}

func (s *stagedState) GetWorkerBook(worker crypto.Address, id uint64) (*WorkerBook, error) {
	key := bookKey(worker, id)
	if book, ok := s.books[key]; ok {
		return book, nil
	}
	book, err := s.base.GetWorkerBook(worker, id)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, nil
	}
	book = book.Clone()
	s.books[key] = book
	return book, nil
}

func (s *stagedState) PutWorkerBook(book *WorkerBook) error {
	if book == nil {
		return nil
	}
	s.books[bookKey(book.Worker, book.PositionID)] = book
	return nil
}

// Commit flushes every staged entity back to the base state. Nothing is
// written before Commit, so abandoning the stage on error leaves the base
// untouched.
func (s *stagedState) Commit() error {
	if s.poolLoaded && s.pool != nil {
		if err := s.base.PutPool(s.pool); err != nil {
			return err
		}
	}
	if s.count != nil {
		if err := s.base.SetPositionCount(*s.count); err != nil {
			return err
		}
	}
	for _, pos := range s.positions {
		if err := s.base.PutPosition(pos); err != nil {
			return err
		}
	}
	for _, entry := range s.openIndex {
		if !entry.dirty {
			continue
		}
		if err := s.base.SetOpenPosition(entry.owner, entry.worker, entry.id); err != nil {
			return err
		}
	}
	for _, entry := range s.accounts {
		if err := s.base.PutAccount(entry.addr, entry.account); err != nil {
			return err
		}
	}
	for _, rec := range s.records {
		if err := s.base.PutRecord(rec); err != nil {
			return err
		}
	}
	for _, acc := range s.supplies {
		if err := s.base.PutSupplyAccount(acc); err != nil {
			return err
		}
	}
	for _, book := range s.books {
		if err := s.base.PutWorkerBook(book); err != nil {
			return err
		}
	}
	return nil
}

func bookKey(worker crypto.Address, id uint64) string {
	return addrKey(worker) + "#" + strconv.FormatUint(id, 10)
}
