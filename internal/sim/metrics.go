package sim

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector bundles the simulation's Prometheus metrics. They are
// diagnostics only and never feed back into control flow.
type Collector struct {
	Cycles         prometheus.Counter
	Faults         *prometheus.CounterVec
	OracleVerdicts *prometheus.CounterVec
}

// NewCollector registers the simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sim_cycles_total",
			Help: "Total number of completed request cycles.",
		}),
		Faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sim_fault_decisions_total",
			Help: "Fault decisions drawn, labeled by fault class.",
		}, []string{"class"}),
		OracleVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sim_oracle_verdicts_total",
			Help: "Oracle verdicts, labeled by match or mismatch.",
		}, []string{"verdict"}),
	}

	for _, col := range []prometheus.Collector{c.Cycles, c.Faults, c.OracleVerdicts} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}
