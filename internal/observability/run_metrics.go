package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RunCollector exposes scenario-level Prometheus metrics: world size,
// simulation clock and run outcomes.
type RunCollector struct {
	gatherer prometheus.Gatherer

	SimTime       prometheus.Gauge
	Hosts         prometheus.Gauge
	MapNodes      prometheus.Gauge
	BuildDuration prometheus.Histogram
	Runs          *prometheus.CounterVec
}

// NewRunCollector registers run metrics against the provided registerer.
func NewRunCollector(reg prometheus.Registerer) (*RunCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	simTime, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dtn_sim_time_seconds",
		Help: "Current simulation clock.",
	}), "dtn_sim_time_seconds")
	if err != nil {
		return nil, err
	}
	hosts, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dtn_hosts",
		Help: "Hosts built for the scenario.",
	}), "dtn_hosts")
	if err != nil {
		return nil, err
	}
	mapNodes, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dtn_map_nodes",
		Help: "Nodes of the loaded simulation map.",
	}), "dtn_map_nodes")
	if err != nil {
		return nil, err
	}
	build, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dtn_scenario_build_duration_seconds",
		Help:    "Time spent building a scenario from its settings.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}), "dtn_scenario_build_duration_seconds")
	if err != nil {
		return nil, err
	}
	runs, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dtn_runs_total",
		Help: "Finished simulation runs, labeled by outcome.",
	}, []string{"outcome"}), "dtn_runs_total")
	if err != nil {
		return nil, err
	}

	return &RunCollector{
		gatherer:      gatherer,
		SimTime:       simTime,
		Hosts:         hosts,
		MapNodes:      mapNodes,
		BuildDuration: build,
		Runs:          runs,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *RunCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// SetSimTime updates the simulation clock gauge.
func (c *RunCollector) SetSimTime(now float64) {
	if c == nil || c.SimTime == nil {
		return
	}
	c.SimTime.Set(now)
}

// SetWorld records the host and map node counts of a built scenario.
func (c *RunCollector) SetWorld(hosts, mapNodes int) {
	if c == nil {
		return
	}
	if c.Hosts != nil {
		c.Hosts.Set(float64(hosts))
	}
	if c.MapNodes != nil {
		c.MapNodes.Set(float64(mapNodes))
	}
}

// ObserveBuild records a scenario build duration.
func (c *RunCollector) ObserveBuild(d time.Duration) {
	if c == nil || c.BuildDuration == nil {
		return
	}
	c.BuildDuration.Observe(d.Seconds())
}

// RunFinished counts a finished run; outcome is "completed", "cancelled"
// or "failed".
func (c *RunCollector) RunFinished(outcome string) {
	if c == nil || c.Runs == nil {
		return
	}
	c.Runs.WithLabelValues(outcome).Inc()
}
