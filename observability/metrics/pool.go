package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type PoolMetrics struct {
	contributions   prometheus.Counter
	withdrawals     prometheus.Counter
	givenVolume     prometheus.Counter
	receivedVolume  prometheus.Counter
	payoutsOK       *prometheus.CounterVec
	payoutsFailed   prometheus.Counter
	retryAttempts   *prometheus.CounterVec
	poolTotal       prometheus.Gauge
	unclaimedFunds  prometheus.Gauge
	receiverCount   prometheus.Gauge
	snapshotCursor  prometheus.Gauge
	failedOutstand  prometheus.Gauge
	distributionRun *prometheus.CounterVec
}

var (
	poolOnce     sync.Once
	poolRegistry *PoolMetrics
)

func Pool() *PoolMetrics {
	poolOnce.Do(func() {
		poolRegistry = &PoolMetrics{
			contributions: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "pool_contributions_total",
				Help: "Count of accepted contributions.",
			}),
			withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "pool_withdrawals_total",
				Help: "Count of successful same-day withdrawals.",
			}),
			givenVolume: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "pool_given_wei_total",
				Help: "Cumulative value given into the pool.",
			}),
			receivedVolume: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "pool_received_wei_total",
				Help: "Cumulative value allocated to receivers.",
			}),
			payoutsOK: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "pool_payouts_delivered_total",
				Help: "Count of delivered payouts by path (batch or retry).",
			}, []string{"path"}),
			payoutsFailed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "pool_payouts_failed_total",
				Help: "Count of payout attempts converted into failed transfer records.",
			}),
			retryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "pool_retry_attempts_total",
				Help: "Count of retry attempts by trigger (manual, sweep, prepass, flush).",
			}, []string{"trigger"}),
			poolTotal: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "pool_total_wei",
				Help: "Current pool total awaiting distribution.",
			}),
			unclaimedFunds: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "pool_unclaimed_wei",
				Help: "Value owed but not yet delivered due to payout failures.",
			}),
			receiverCount: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "pool_receivers",
				Help: "Current live receiver set size.",
			}),
			snapshotCursor: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "pool_distribution_cursor",
				Help: "Next unprocessed snapshot index of the in-progress distribution.",
			}),
			failedOutstand: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "pool_failed_transfers",
				Help: "Outstanding failed transfer records.",
			}),
			distributionRun: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "pool_distribution_runs_total",
				Help: "Distribution lifecycle transitions by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			poolRegistry.contributions,
			poolRegistry.withdrawals,
			poolRegistry.givenVolume,
			poolRegistry.receivedVolume,
			poolRegistry.payoutsOK,
			poolRegistry.payoutsFailed,
			poolRegistry.retryAttempts,
			poolRegistry.poolTotal,
			poolRegistry.unclaimedFunds,
			poolRegistry.receiverCount,
			poolRegistry.snapshotCursor,
			poolRegistry.failedOutstand,
			poolRegistry.distributionRun,
		)
	})
	return poolRegistry
}

// StatsSink mirrors per-user giving and receiving volume onto the pool
// metrics. The pool engine accepts it as its stats collaborator.
type StatsSink struct {
	m *PoolMetrics
}

// NewStatsSink returns a sink backed by the shared pool metrics.
func NewStatsSink() *StatsSink {
	return &StatsSink{m: Pool()}
}

// Update records amount against the giving or receiving volume counter.
func (s *StatsSink) Update(_ [20]byte, isGiving bool, amount *big.Int) {
	if s == nil || s.m == nil || amount == nil {
		return
	}
	wei, _ := new(big.Float).SetInt(amount).Float64()
	if isGiving {
		s.m.givenVolume.Add(wei)
		return
	}
	s.m.receivedVolume.Add(wei)
}

func (m *PoolMetrics) ObserveContribution() {
	if m == nil {
		return
	}
	m.contributions.Inc()
}

func (m *PoolMetrics) ObserveWithdrawal() {
	if m == nil {
		return
	}
	m.withdrawals.Inc()
}

func (m *PoolMetrics) ObservePayoutDelivered(path string) {
	if m == nil {
		return
	}
	if path == "" {
		path = "batch"
	}
	m.payoutsOK.WithLabelValues(path).Inc()
}

func (m *PoolMetrics) ObservePayoutFailed() {
	if m == nil {
		return
	}
	m.payoutsFailed.Inc()
}

func (m *PoolMetrics) ObserveRetryAttempt(trigger string) {
	if m == nil {
		return
	}
	if trigger == "" {
		trigger = "manual"
	}
	m.retryAttempts.WithLabelValues(trigger).Inc()
}

func (m *PoolMetrics) SetPoolTotal(wei float64) {
	if m == nil {
		return
	}
	m.poolTotal.Set(wei)
}

func (m *PoolMetrics) SetUnclaimed(wei float64) {
	if m == nil {
		return
	}
	m.unclaimedFunds.Set(wei)
}

func (m *PoolMetrics) SetReceiverCount(n float64) {
	if m == nil {
		return
	}
	m.receiverCount.Set(n)
}

func (m *PoolMetrics) SetCursor(n float64) {
	if m == nil {
		return
	}
	m.snapshotCursor.Set(n)
}

func (m *PoolMetrics) SetFailedOutstanding(n float64) {
	if m == nil {
		return
	}
	m.failedOutstand.Set(n)
}

func (m *PoolMetrics) ObserveDistribution(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.distributionRun.WithLabelValues(outcome).Inc()
}
