package leverage

import (
	"math/big"
	"sync"
)

// PriceOracle exposes exchange rates between asset pairs as 1e18 fixed-point
// values together with the unix timestamp of the last update. Consumers are
// responsible for enforcing their own freshness bound.
type PriceOracle interface {
	GetPrice(base, quote string) (*big.Int, uint64, error)
}

type oracleEntry struct {
	rate       *big.Int
	lastUpdate uint64
}

// OracleTable is an in-memory PriceOracle fed by an external attester or by
// tests. Missing pairs fail closed.
type OracleTable struct {
	mu     sync.RWMutex
	prices map[string]oracleEntry
}

// NewOracleTable returns an empty price table.
func NewOracleTable() *OracleTable {
	return &OracleTable{prices: make(map[string]oracleEntry)}
}

// SetPrice installs the rate for a pair, stamped with the update time.
func (o *OracleTable) SetPrice(base, quote string, rate *big.Int, updatedAt uint64) {
	if o == nil || rate == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[base+"/"+quote] = oracleEntry{rate: new(big.Int).Set(rate), lastUpdate: updatedAt}
}

// GetPrice returns the stored rate and its update time for the pair.
func (o *OracleTable) GetPrice(base, quote string) (*big.Int, uint64, error) {
	if o == nil {
		return nil, 0, ErrPriceMissing
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	entry, ok := o.prices[base+"/"+quote]
	if !ok {
		return nil, 0, ErrPriceMissing
	}
	return new(big.Int).Set(entry.rate), entry.lastUpdate, nil
}

// freshPrice fetches a rate and enforces the freshness bound. A zero maxAge
// disables the staleness check.
func freshPrice(oracle PriceOracle, base, quote string, now, maxAge uint64) (*big.Int, error) {
	if oracle == nil {
		return nil, ErrPriceMissing
	}
	rate, lastUpdate, err := oracle.GetPrice(base, quote)
	if err != nil {
		return nil, err
	}
	if rate == nil || rate.Sign() <= 0 {
		return nil, ErrPriceMissing
	}
	if maxAge > 0 && now > lastUpdate && now-lastUpdate > maxAge {
		return nil, ErrPriceStale
	}
	return rate, nil
}
