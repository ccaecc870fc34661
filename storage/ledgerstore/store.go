package ledgerstore

import (
	"encoding/binary"
	"errors"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"leverfarm/core/types"
	"leverfarm/crypto"
	"leverfarm/native/leverage"
	"leverfarm/storage"
)

// Store persists the leverage module state in a key-value database. Keys are
// hashed with a per-entity prefix; values are RLP encoded.
type Store struct {
	db storage.Database
}

// NewStore wraps a database as the engine's persistence surface.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

var (
	accountPrefix  = []byte("leverage/account:")
	positionPrefix = []byte("leverage/position:")
	indexPrefix    = []byte("leverage/open-index:")
	recordPrefix   = []byte("leverage/record:")
	supplyPrefix   = []byte("leverage/supply:")
	bookPrefix     = []byte("leverage/book:")

	poolKey          = ethcrypto.Keccak256([]byte("leverage/pool"))
	positionCountKey = ethcrypto.Keccak256([]byte("leverage/position-count"))
)

func addrPayload(addr crypto.Address) []byte {
	prefix := []byte(addr.Prefix())
	buf := make([]byte, 0, len(prefix)+1+len(addr.Bytes()))
	buf = append(buf, prefix...)
	buf = append(buf, ':')
	return append(buf, addr.Bytes()...)
}

func hashKey(prefix []byte, payload ...[]byte) []byte {
	buf := append([]byte{}, prefix...)
	for _, part := range payload {
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

func idPayload(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

func (s *Store) load(key []byte, out interface{}) (bool, error) {
	data, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) save(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return s.db.Put(key, encoded)
}

type storedAccount struct {
	Nonce   uint64
	Balance *big.Int
}

type storedAddress struct {
	Prefix string
	Bytes  []byte
}

func packAddress(addr crypto.Address) storedAddress {
	return storedAddress{Prefix: string(addr.Prefix()), Bytes: addr.Bytes()}
}

func (a storedAddress) unpack() crypto.Address {
	return crypto.NewAddress(crypto.AddressPrefix(a.Prefix), a.Bytes)
}

type storedPool struct {
	TotalDebtShare    *big.Int
	TotalDebtValue    *big.Int
	Reserve           *big.Int
	TotalSupplyShares *big.Int
	LastAccrual       uint64
}

type storedPosition struct {
	ID        uint64
	Owner     storedAddress
	Worker    storedAddress
	DebtShare *big.Int
	Principal *big.Int
}

type storedRecord struct {
	Owner          storedAddress
	Worker         storedAddress
	TotalDeposited *big.Int
	TotalWithdrawn *big.Int
}

type storedSupply struct {
	Address storedAddress
	Shares  *big.Int
}

type storedBook struct {
	Worker     storedAddress
	PositionID uint64
	Shares     *big.Int
	BaseLeg    *big.Int
	FarmLeg    *big.Int
}

func zero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func (s *Store) GetAccount(addr crypto.Address) (*types.Account, error) {
	var stored storedAccount
	ok, err := s.load(hashKey(accountPrefix, addrPayload(addr)), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return &types.Account{Nonce: stored.Nonce, Balance: zero(stored.Balance)}, nil
}

func (s *Store) PutAccount(addr crypto.Address, account *types.Account) error {
	if account == nil {
		return nil
	}
	stored := storedAccount{Nonce: account.Nonce, Balance: zero(account.Balance)}
	return s.save(hashKey(accountPrefix, addrPayload(addr)), &stored)
}

func (s *Store) GetPool() (*leverage.DebtPool, error) {
	var stored storedPool
	ok, err := s.load(poolKey, &stored)
	if err != nil || !ok {
		return nil, err
	}
	return &leverage.DebtPool{
		TotalDebtShare:    zero(stored.TotalDebtShare),
		TotalDebtValue:    zero(stored.TotalDebtValue),
		Reserve:           zero(stored.Reserve),
		TotalSupplyShares: zero(stored.TotalSupplyShares),
		LastAccrual:       stored.LastAccrual,
	}, nil
}

func (s *Store) PutPool(pool *leverage.DebtPool) error {
	if pool == nil {
		return nil
	}
	stored := storedPool{
		TotalDebtShare:    zero(pool.TotalDebtShare),
		TotalDebtValue:    zero(pool.TotalDebtValue),
		Reserve:           zero(pool.Reserve),
		TotalSupplyShares: zero(pool.TotalSupplyShares),
		LastAccrual:       pool.LastAccrual,
	}
	return s.save(poolKey, &stored)
}

func (s *Store) GetPosition(id uint64) (*leverage.Position, error) {
	var stored storedPosition
	ok, err := s.load(hashKey(positionPrefix, idPayload(id)), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return &leverage.Position{
		ID:        stored.ID,
		Owner:     stored.Owner.unpack(),
		Worker:    stored.Worker.unpack(),
		DebtShare: zero(stored.DebtShare),
		Principal: zero(stored.Principal),
	}, nil
}

func (s *Store) PutPosition(position *leverage.Position) error {
	if position == nil {
		return nil
	}
	stored := storedPosition{
		ID:        position.ID,
		Owner:     packAddress(position.Owner),
		Worker:    packAddress(position.Worker),
		DebtShare: zero(position.DebtShare),
		Principal: zero(position.Principal),
	}
	return s.save(hashKey(positionPrefix, idPayload(position.ID)), &stored)
}

func (s *Store) PositionCount() (uint64, error) {
	var count uint64
	if _, err := s.load(positionCountKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) SetPositionCount(count uint64) error {
	return s.save(positionCountKey, count)
}

func (s *Store) OpenPositionID(owner, worker crypto.Address) (uint64, bool, error) {
	var id uint64
	ok, err := s.load(hashKey(indexPrefix, addrPayload(owner), addrPayload(worker)), &id)
	if err != nil {
		return 0, false, err
	}
	return id, ok, nil
}

func (s *Store) SetOpenPosition(owner, worker crypto.Address, id uint64) error {
	return s.save(hashKey(indexPrefix, addrPayload(owner), addrPayload(worker)), id)
}

func (s *Store) GetRecord(owner, worker crypto.Address) (*leverage.PositionRecord, error) {
	var stored storedRecord
	ok, err := s.load(hashKey(recordPrefix, addrPayload(owner), addrPayload(worker)), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return &leverage.PositionRecord{
		Owner:          stored.Owner.unpack(),
		Worker:         stored.Worker.unpack(),
		TotalDeposited: zero(stored.TotalDeposited),
		TotalWithdrawn: zero(stored.TotalWithdrawn),
	}, nil
}

func (s *Store) PutRecord(record *leverage.PositionRecord) error {
	if record == nil {
		return nil
	}
	stored := storedRecord{
		Owner:          packAddress(record.Owner),
		Worker:         packAddress(record.Worker),
		TotalDeposited: zero(record.TotalDeposited),
		TotalWithdrawn: zero(record.TotalWithdrawn),
	}
	return s.save(hashKey(recordPrefix, addrPayload(record.Owner), addrPayload(record.Worker)), &stored)
}

func (s *Store) GetSupplyAccount(addr crypto.Address) (*leverage.SupplyAccount, error) {
	var stored storedSupply
	ok, err := s.load(hashKey(supplyPrefix, addrPayload(addr)), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return &leverage.SupplyAccount{Address: stored.Address.unpack(), Shares: zero(stored.Shares)}, nil
}

func (s *Store) PutSupplyAccount(account *leverage.SupplyAccount) error {
	if account == nil {
		return nil
	}
	stored := storedSupply{Address: packAddress(account.Address), Shares: zero(account.Shares)}
	return s.save(hashKey(supplyPrefix, addrPayload(account.Address)), &stored)
}

func (s *Store) GetWorkerBook(worker crypto.Address, id uint64) (*leverage.WorkerBook, error) {
	var stored storedBook
	ok, err := s.load(hashKey(bookPrefix, addrPayload(worker), idPayload(id)), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return &leverage.WorkerBook{
		Worker:     stored.Worker.unpack(),
		PositionID: stored.PositionID,
		Shares:     zero(stored.Shares),
		BaseLeg:    zero(stored.BaseLeg),
		FarmLeg:    zero(stored.FarmLeg),
	}, nil
}

func (s *Store) PutWorkerBook(book *leverage.WorkerBook) error {
	if book == nil {
		return nil
	}
	stored := storedBook{
		Worker:     packAddress(book.Worker),
		PositionID: book.PositionID,
		Shares:     zero(book.Shares),
		BaseLeg:    zero(book.BaseLeg),
		FarmLeg:    zero(book.FarmLeg),
	}
	return s.save(hashKey(bookPrefix, addrPayload(book.Worker), idPayload(book.PositionID)), &stored)
}
