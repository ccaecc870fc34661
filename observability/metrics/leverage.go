package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type LeverageMetrics struct {
	workCalls       prometheus.Counter
	killCalls       prometheus.Counter
	killVolume      prometheus.Counter
	deposits        prometheus.Counter
	accruedInterest prometheus.Counter
	reserve         prometheus.Gauge
}

var (
	leverageOnce     sync.Once
	leverageRegistry *LeverageMetrics
)

func Leverage() *LeverageMetrics {
	leverageOnce.Do(func() {
		leverageRegistry = &LeverageMetrics{
			workCalls: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "leverage_work_total",
				Help: "Count of successful work settlements.",
			}),
			killCalls: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "leverage_kill_total",
				Help: "Count of successful liquidations.",
			}),
			killVolume: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "leverage_kill_volume_wei",
				Help: "Cumulative base-asset proceeds recovered by liquidations.",
			}),
			deposits: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "leverage_deposit_volume_wei",
				Help: "Cumulative base asset supplied by lenders.",
			}),
			accruedInterest: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "leverage_accrued_interest_wei",
				Help: "Cumulative interest accrued onto the debt pool.",
			}),
			reserve: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "leverage_pool_reserve_wei",
				Help: "Current pool reserve backing lender losses.",
			}),
		}
		prometheus.MustRegister(
			leverageRegistry.workCalls,
			leverageRegistry.killCalls,
			leverageRegistry.killVolume,
			leverageRegistry.deposits,
			leverageRegistry.accruedInterest,
			leverageRegistry.reserve,
		)
	})
	return leverageRegistry
}

func (m *LeverageMetrics) ObserveWork() {
	if m == nil {
		return
	}
	m.workCalls.Inc()
}

func (m *LeverageMetrics) ObserveKill(volume float64) {
	if m == nil {
		return
	}
	m.killCalls.Inc()
	if volume > 0 {
		m.killVolume.Add(volume)
	}
}

func (m *LeverageMetrics) ObserveDeposit(amount float64) {
	if m == nil {
		return
	}
	if amount > 0 {
		m.deposits.Add(amount)
	}
}

func (m *LeverageMetrics) ObserveAccrual(amount float64) {
	if m == nil {
		return
	}
	if amount > 0 {
		m.accruedInterest.Add(amount)
	}
}

func (m *LeverageMetrics) SetReserve(amount float64) {
	if m == nil {
		return
	}
	m.reserve.Set(amount)
}
