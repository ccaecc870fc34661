package leverage

import (
	"errors"
	"fmt"
)

// Failure classes. Every concrete error below wraps exactly one of these so
// callers can branch on the class with errors.Is while still matching the
// specific condition.
var (
	// ErrInvariantViolation marks arithmetic that must never fail given
	// correct caller bookkeeping. The call aborts and is not retried.
	ErrInvariantViolation = errors.New("leverage: invariant violation")
	// ErrPolicyRejection marks an expected rejection the caller may retry
	// with different parameters.
	ErrPolicyRejection = errors.New("leverage: policy rejection")
	// ErrUnauthorized marks an ownership or operator mismatch.
	ErrUnauthorized = errors.New("leverage: unauthorized")
	// ErrCollaboratorFailure marks a failure reported by an external
	// collaborator (worker, oracle, token custody).
	ErrCollaboratorFailure = errors.New("leverage: collaborator failure")
)

func invariantErr(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, msg)
}

func policyErr(msg string) error {
	return fmt.Errorf("%w: %s", ErrPolicyRejection, msg)
}

func authErr(msg string) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
}

func collaboratorErr(msg string) error {
	return fmt.Errorf("%w: %s", ErrCollaboratorFailure, msg)
}

var (
	errNilState         = errors.New("leverage engine: state not configured")
	errNilCurve         = errors.New("leverage engine: interest curve not configured")
	errInvalidAmount    = errors.New("leverage engine: amount must be positive")
	errNegativeAmount   = errors.New("leverage engine: amount must not be negative")
	errInsufficientCash = policyErr("insufficient pool liquidity")
	errInsufficientBal  = policyErr("insufficient balance")

	// ErrReentrant rejects a nested settlement call while one is already in
	// progress on the same engine.
	ErrReentrant = errors.New("leverage engine: re-entrant settlement call")

	// ErrRateCeiling aborts accrual when the curve output breaches the
	// configured hard ceiling, guarding against model misconfiguration.
	ErrRateCeiling = invariantErr("borrow rate exceeds hard ceiling")

	// ErrDebtUnderflow signals a share/value removal larger than the pool
	// totals. Correct caller bookkeeping makes this unreachable.
	ErrDebtUnderflow = invariantErr("debt pool underflow")

	// ErrUnknownWorker rejects any operation against a worker that is not
	// registered with the policy surface. Lookups fail closed.
	ErrUnknownWorker = policyErr("worker not registered")

	// ErrDebtNotAccepted rejects new borrowing against a worker whose
	// market is frozen for debt.
	ErrDebtNotAccepted = policyErr("worker not accepting new debt")

	// ErrDebtTooSmall rejects residual debt below the configured minimum.
	ErrDebtTooSmall = policyErr("remaining debt below minimum size")

	// ErrDepositTooSmall rejects a deposit too small to mint a whole supply
	// share at the pool's current value per share.
	ErrDepositTooSmall = policyErr("deposit too small to mint supply shares")

	// ErrWorkFactorBreached rejects an open/modify whose resulting debt is
	// not sufficiently over-collateralized.
	ErrWorkFactorBreached = policyErr("position undercollateralized for requested debt")

	// ErrPositionHealthy rejects a liquidation attempt against a position
	// still above the kill threshold.
	ErrPositionHealthy = policyErr("position not eligible for liquidation")

	// ErrNoDebt rejects a liquidation of a position without outstanding debt.
	ErrNoDebt = policyErr("position carries no debt")

	// ErrOwnerKill rejects a liquidation issued by the position owner when
	// the worker policy does not allow self-liquidation.
	ErrOwnerKill = policyErr("position owner may not liquidate own position")

	// ErrPositionMismatch signals that the supplied worker does not match
	// the worker recorded on the position.
	ErrPositionMismatch = authErr("position worker mismatch")

	// ErrNotOwner signals a caller operating on a position it does not own.
	ErrNotOwner = authErr("caller is not the position owner")

	// ErrPositionExists rejects opening a second position for the same
	// (owner, worker) pair.
	ErrPositionExists = policyErr("open position already exists for owner and worker")

	// ErrPositionNotFound signals a lookup of an id that was never allocated.
	ErrPositionNotFound = policyErr("position not found")

	// ErrPriceMissing signals an oracle without a quote for the pair.
	ErrPriceMissing = collaboratorErr("price not available for pair")

	// ErrPriceStale signals an oracle quote older than the freshness bound.
	ErrPriceStale = collaboratorErr("price update too old")
)
