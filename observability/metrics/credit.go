package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type CreditMetrics struct {
	multicalls     *prometheus.CounterVec
	closures       *prometheus.CounterVec
	lossAbsorbed   prometheus.Counter
	cumulativeLoss prometheus.Gauge
	openAccounts   prometheus.Gauge
	borrowed       prometheus.Gauge
}

var (
	creditOnce     sync.Once
	creditRegistry *CreditMetrics
)

func Credit() *CreditMetrics {
	creditOnce.Do(func() {
		creditRegistry = &CreditMetrics{
			multicalls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "credit_multicalls_total",
				Help: "Count of multicall batches by outcome.",
			}, []string{"outcome"}),
			closures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "credit_closures_total",
				Help: "Count of account closures by closure kind.",
			}, []string{"kind"}),
			lossAbsorbed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "credit_loss_absorbed_total",
				Help: "Count of liquidation shortfalls written down as pool loss.",
			}),
			cumulativeLoss: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "credit_cumulative_loss",
				Help: "Running pool write-down total in underlying base units.",
			}),
			openAccounts: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "credit_open_accounts",
				Help: "Number of live credit accounts.",
			}),
			borrowed: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "credit_pool_borrowed",
				Help: "Outstanding pool principal in underlying base units.",
			}),
		}
		prometheus.MustRegister(
			creditRegistry.multicalls,
			creditRegistry.closures,
			creditRegistry.lossAbsorbed,
			creditRegistry.cumulativeLoss,
			creditRegistry.openAccounts,
			creditRegistry.borrowed,
		)
	})
	return creditRegistry
}

func (m *CreditMetrics) ObserveMulticall(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.multicalls.WithLabelValues(outcome).Inc()
}

func (m *CreditMetrics) ObserveClosure(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.closures.WithLabelValues(kind).Inc()
}

func (m *CreditMetrics) ObserveLoss(cumulative *big.Int) {
	if m == nil {
		return
	}
	m.lossAbsorbed.Inc()
	if cumulative != nil {
		value, _ := new(big.Float).SetInt(cumulative).Float64()
		m.cumulativeLoss.Set(value)
	}
}

func (m *CreditMetrics) SetOpenAccounts(count int) {
	if m == nil {
		return
	}
	m.openAccounts.Set(float64(count))
}

func (m *CreditMetrics) SetBorrowed(amount *big.Int) {
	if m == nil || amount == nil {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.borrowed.Set(value)
}
