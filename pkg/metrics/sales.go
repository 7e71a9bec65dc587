package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// SalesMetrics tracks register throughput and loyalty accrual.
type SalesMetrics struct {
	completed    *prometheus.CounterVec
	revenue      *prometheus.CounterVec
	rejected     *prometheus.CounterVec
	points       prometheus.Counter
	tierUpgrades *prometheus.CounterVec
}

func NewSalesMetrics(reg prometheus.Registerer) *SalesMetrics {
	if reg == nil {
		return &SalesMetrics{}
	}
	m := &SalesMetrics{
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pos",
			Name:      "sales_completed_total",
			Help:      "Committed register sales.",
		}, []string{"payment_method"}),
		revenue: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pos",
			Name:      "sales_revenue_total",
			Help:      "Sum of committed sale totals in dollars.",
		}, []string{"payment_method"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pos",
			Name:      "sales_rejected_total",
			Help:      "Sales rolled back, by error code.",
		}, []string{"code"}),
		points: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loyalty",
			Name:      "points_awarded_total",
			Help:      "Loyalty points credited by register sales.",
		}),
		tierUpgrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loyalty",
			Name:      "tier_upgrades_total",
			Help:      "Customers promoted into a tier.",
		}, []string{"tier"}),
	}
	reg.MustRegister(m.completed, m.revenue, m.rejected, m.points, m.tierUpgrades)
	return m
}

// ObserveSale records a committed sale.
func (m *SalesMetrics) ObserveSale(paymentMethod string, total decimal.Decimal) {
	if m == nil || m.completed == nil {
		return
	}
	label := normalizeLabel(paymentMethod)
	m.completed.WithLabelValues(label).Inc()
	m.revenue.WithLabelValues(label).Add(total.InexactFloat64())
}

func (m *SalesMetrics) IncRejected(code string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(code)).Inc()
}

// ObserveLoyalty records the outcome of one accrual.
func (m *SalesMetrics) ObserveLoyalty(points int64, upgradedTo string) {
	if m == nil || m.points == nil {
		return
	}
	if points > 0 {
		m.points.Add(float64(points))
	}
	if upgradedTo != "" {
		m.tierUpgrades.WithLabelValues(upgradedTo).Inc()
	}
}
