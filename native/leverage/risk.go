package leverage

import "math/big"

// RiskEngine derives work and kill eligibility from worker-appraised
// collateral health and the policy factors. Health is opaque input obtained
// from the worker; the comparisons are parts-per-10000 cross products so no
// division rounding enters the decision.
type RiskEngine struct {
	policy PolicyView
}

// NewRiskEngine constructs a risk engine over the policy surface.
func NewRiskEngine(policy PolicyView) *RiskEngine {
	return &RiskEngine{policy: policy}
}

// Health returns the worker's appraisal of the position's collateral in
// base-asset terms.
func (r *RiskEngine) Health(s WorkerState, w Worker, now, id uint64) (*big.Int, error) {
	if w == nil {
		return nil, ErrUnknownWorker
	}
	health, err := w.Health(s, now, id)
	if err != nil {
		return nil, err
	}
	return zeroIfNil(health), nil
}

// CanOpen accepts the new total debt when health * workFactor covers
// debt * 10000, with equality accepted. Zero debt always passes.
func (r *RiskEngine) CanOpen(s WorkerState, w Worker, now, id uint64, debt *big.Int) error {
	if debt == nil || debt.Sign() == 0 {
		return nil
	}
	policy, err := r.policy.WorkerPolicy(w.Address())
	if err != nil {
		return err
	}
	health, err := r.Health(s, w, now, id)
	if err != nil {
		return err
	}
	lhs := new(big.Int).Mul(health, new(big.Int).SetUint64(policy.WorkFactorBps))
	rhs := new(big.Int).Mul(debt, basisPoints)
	if lhs.Cmp(rhs) < 0 {
		return ErrWorkFactorBreached
	}
	return nil
}

// CanLiquidate accepts the kill only when health * killFactor is strictly
// below debt * 10000.
func (r *RiskEngine) CanLiquidate(s WorkerState, w Worker, now, id uint64, debt *big.Int) error {
	if debt == nil || debt.Sign() == 0 {
		return ErrNoDebt
	}
	policy, err := r.policy.WorkerPolicy(w.Address())
	if err != nil {
		return err
	}
	health, err := r.Health(s, w, now, id)
	if err != nil {
		return err
	}
	lhs := new(big.Int).Mul(health, new(big.Int).SetUint64(policy.KillFactorBps))
	rhs := new(big.Int).Mul(debt, basisPoints)
	if lhs.Cmp(rhs) >= 0 {
		return ErrPositionHealthy
	}
	return nil
}
