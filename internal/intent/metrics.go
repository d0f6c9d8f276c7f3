package intent

import "github.com/prometheus/client_golang/prometheus"

// metrics collects the platform's stable-named telemetry, scraped at
// GET /stores/metrics.
type metrics struct {
	storesCreated prometheus.Counter
	storesDeleted prometheus.Counter
	storesTotal   *prometheus.GaugeVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		storesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stores_created_total",
			Help: "Total stores created via the intent layer.",
		}),
		storesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stores_deleted_total",
			Help: "Total stores marked for deletion.",
		}),
		storesTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stores_total",
			Help: "Current store count, by phase.",
		}, []string{"phase"}),
	}
	reg.MustRegister(m.storesCreated, m.storesDeleted, m.storesTotal)
	return m
}

// SetPhaseCounts replaces the stores_total gauge vector with fresh counts.
func (m *metrics) SetPhaseCounts(counts map[string]int) {
	m.storesTotal.Reset()
	for phase, n := range counts {
		m.storesTotal.WithLabelValues(phase).Set(float64(n))
	}
}
