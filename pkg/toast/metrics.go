package toast

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// storeMetrics tracks store activity in Prometheus. A nil *storeMetrics is
// valid and records nothing, so instrumentation stays optional.
type storeMetrics struct {
	created    prometheus.Counter
	dismissals prometheus.Counter
	removed    prometheus.Counter
	evicted    prometheus.Counter
	visible    prometheus.Gauge
}

// WithMetrics registers store metrics with the given registerer. Pass
// prometheus.DefaultRegisterer to publish on the standard /metrics surface.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Store) {
		factory := promauto.With(reg)
		s.metrics = &storeMetrics{
			created: factory.NewCounter(prometheus.CounterOpts{
				Namespace: "citypulse",
				Subsystem: "toast",
				Name:      "created_total",
				Help:      "Toasts created.",
			}),
			dismissals: factory.NewCounter(prometheus.CounterOpts{
				Namespace: "citypulse",
				Subsystem: "toast",
				Name:      "dismissals_total",
				Help:      "Dismiss dispatches processed.",
			}),
			removed: factory.NewCounter(prometheus.CounterOpts{
				Namespace: "citypulse",
				Subsystem: "toast",
				Name:      "removed_total",
				Help:      "Toasts purged from state.",
			}),
			evicted: factory.NewCounter(prometheus.CounterOpts{
				Namespace: "citypulse",
				Subsystem: "toast",
				Name:      "evicted_total",
				Help:      "Toasts evicted from the visible list by newer ones.",
			}),
			visible: factory.NewGauge(prometheus.GaugeOpts{
				Namespace: "citypulse",
				Subsystem: "toast",
				Name:      "visible",
				Help:      "Toasts currently in state.",
			}),
		}
	}
}

func (m *storeMetrics) observe(a action, before, after int) {
	if m == nil {
		return
	}
	switch a.kind {
	case actionAdd:
		m.created.Inc()
		if evicted := before + 1 - after; evicted > 0 {
			m.evicted.Add(float64(evicted))
		}
	case actionDismiss:
		m.dismissals.Inc()
	case actionRemove:
		if removed := before - after; removed > 0 {
			m.removed.Add(float64(removed))
		}
	}
	m.visible.Set(float64(after))
}
