package leverage

import (
	"math/big"

	"leverfarm/crypto"
)

// WorkerPolicy groups the per-worker risk parameters consumed by the risk
// and settlement engines. Factors are expressed in parts-per-10000.
type WorkerPolicy struct {
	// AcceptDebt gates new borrowing; pure collateral adds and close-outs
	// remain allowed while false.
	AcceptDebt bool
	// WorkFactorBps is the maximum leverage threshold applied when opening
	// debt: health * workFactor must cover debt * 10000.
	WorkFactorBps uint64
	// KillFactorBps is the looser collateralization bound below which the
	// position becomes liquidatable, creating hysteresis against
	// WorkFactorBps.
	KillFactorBps uint64
	// MinDebtSize rejects residual dust debt after a partial repayment.
	MinDebtSize *big.Int
	// KillBps is the total clearance fee charged on liquidation proceeds.
	KillBps uint64
	// SecurityFactorBps is the slice of the clearance fee routed to the
	// pool reserve instead of the liquidator.
	SecurityFactorBps uint64
	// AllowOwnerKill permits the position owner to act as its own
	// liquidator. Off by default.
	AllowOwnerKill bool
}

// Clone returns a deep copy of the policy.
func (p WorkerPolicy) Clone() WorkerPolicy {
	clone := p
	if p.MinDebtSize != nil {
		clone.MinDebtSize = new(big.Int).Set(p.MinDebtSize)
	}
	return clone
}

func (p *WorkerPolicy) ensure() {
	if p.MinDebtSize == nil {
		p.MinDebtSize = big.NewInt(0)
	}
}

// PolicyView is the read-only configuration surface the engines consult per
// call. Lookups for unregistered workers fail closed.
type PolicyView interface {
	IsWorker(addr crypto.Address) bool
	WorkerPolicy(addr crypto.Address) (WorkerPolicy, error)
}

// PolicyRegistry is an in-memory PolicyView populated from configuration.
type PolicyRegistry struct {
	policies map[string]WorkerPolicy
}

// NewPolicyRegistry returns an empty registry.
func NewPolicyRegistry() *PolicyRegistry {
	return &PolicyRegistry{policies: make(map[string]WorkerPolicy)}
}

// Register installs or replaces the policy for a worker.
func (r *PolicyRegistry) Register(addr crypto.Address, policy WorkerPolicy) {
	if r == nil {
		return
	}
	policy.ensure()
	r.policies[addrKey(addr)] = policy.Clone()
}

// IsWorker reports whether the worker has a registered policy.
func (r *PolicyRegistry) IsWorker(addr crypto.Address) bool {
	if r == nil {
		return false
	}
	_, ok := r.policies[addrKey(addr)]
	return ok
}

// WorkerPolicy returns the policy for a registered worker and fails closed
// for anything else.
func (r *PolicyRegistry) WorkerPolicy(addr crypto.Address) (WorkerPolicy, error) {
	if r == nil {
		return WorkerPolicy{}, ErrUnknownWorker
	}
	policy, ok := r.policies[addrKey(addr)]
	if !ok {
		return WorkerPolicy{}, ErrUnknownWorker
	}
	return policy.Clone(), nil
}

func addrKey(addr crypto.Address) string {
	return string(addr.Prefix()) + ":" + string(addr.Bytes())
}

func pairKey(owner, worker crypto.Address) string {
	return addrKey(owner) + "|" + addrKey(worker)
}
