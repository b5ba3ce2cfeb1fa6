package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ContactCollector bundles the Prometheus metrics of the contact
// scheduler. It implements core.ContactMetrics.
type ContactCollector struct {
	gatherer prometheus.Gatherer

	ContactsUp     *prometheus.CounterVec
	ContactsDown   *prometheus.CounterVec
	RangeChecks    *prometheus.CounterVec
	GridInterfaces *prometheus.GaugeVec
	ActiveContacts prometheus.Gauge
	TickDuration   prometheus.Histogram
}

// NewContactCollector registers contact metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewContactCollector(reg prometheus.Registerer) (*ContactCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	up, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dtn_contacts_up_total",
		Help: "Contacts established, labeled by interface technology.",
	}, []string{"technology"}), "dtn_contacts_up_total")
	if err != nil {
		return nil, err
	}
	down, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dtn_contacts_down_total",
		Help: "Contacts torn down, labeled by interface technology.",
	}, []string{"technology"}), "dtn_contacts_down_total")
	if err != nil {
		return nil, err
	}
	checks, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dtn_range_checks_total",
		Help: "Interface pairs evaluated for range, labeled by interface technology.",
	}, []string{"technology"}), "dtn_range_checks_total")
	if err != nil {
		return nil, err
	}
	gridIfaces, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dtn_grid_interfaces",
		Help: "Interfaces registered in the connectivity grid of a technology.",
	}, []string{"technology"}), "dtn_grid_interfaces")
	if err != nil {
		return nil, err
	}
	active, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dtn_contacts_active",
		Help: "Contacts currently up.",
	}), "dtn_contacts_active")
	if err != nil {
		return nil, err
	}
	tick, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dtn_tick_duration_seconds",
		Help:    "Wall-clock duration of one contact scheduler tick.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}), "dtn_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &ContactCollector{
		gatherer:       gatherer,
		ContactsUp:     up,
		ContactsDown:   down,
		RangeChecks:    checks,
		GridInterfaces: gridIfaces,
		ActiveContacts: active,
		TickDuration:   tick,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *ContactCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *ContactCollector) ContactUp(technology string) {
	if c == nil || c.ContactsUp == nil {
		return
	}
	c.ContactsUp.WithLabelValues(technology).Inc()
}

func (c *ContactCollector) ContactDown(technology string) {
	if c == nil || c.ContactsDown == nil {
		return
	}
	c.ContactsDown.WithLabelValues(technology).Inc()
}

func (c *ContactCollector) SetActiveContacts(n int) {
	if c == nil || c.ActiveContacts == nil {
		return
	}
	c.ActiveContacts.Set(float64(n))
}

func (c *ContactCollector) SetGridInterfaces(technology string, n int) {
	if c == nil || c.GridInterfaces == nil {
		return
	}
	c.GridInterfaces.WithLabelValues(technology).Set(float64(n))
}

func (c *ContactCollector) AddRangeChecks(technology string, n int) {
	if c == nil || c.RangeChecks == nil || n <= 0 {
		return
	}
	c.RangeChecks.WithLabelValues(technology).Add(float64(n))
}

// ObserveTick records a tick duration measurement.
func (c *ContactCollector) ObserveTick(d time.Duration) {
	if c == nil || c.TickDuration == nil {
		return
	}
	c.TickDuration.Observe(d.Seconds())
}

// register adds col to reg. When an equal collector is already registered
// the existing one is returned, so collectors can be built more than once
// against the same registry.
func register[T prometheus.Collector](reg prometheus.Registerer, col T, name string) (T, error) {
	if err := reg.Register(col); err != nil {
		var zero T
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return zero, err
	}
	return col, nil
}
