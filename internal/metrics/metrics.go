package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"facr-builder/internal/compiler"
)

// Registry holds the metrics of one facr_builder run. Each run owns its
// registry; nothing is registered globally.
type Registry struct {
	reg *prometheus.Registry

	ServicesCompiled prometheus.Gauge
	ServicesOmitted  prometheus.Gauge
	CandidateRules   prometheus.Gauge
	CompiledRules    prometheus.Gauge
	BroadRules       prometheus.Gauge
	Warnings         *prometheus.GaugeVec
	InventoryHosts   prometheus.Gauge
	CompileDuration  prometheus.Gauge
	LastRun          prometheus.Gauge
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	r := &Registry{reg: reg}

	r.ServicesCompiled = factory.NewGauge(prometheus.GaugeOpts{
		Name: "facr_services_compiled",
		Help: "Number of catalog services compiled in the last run",
	})
	r.ServicesOmitted = factory.NewGauge(prometheus.GaugeOpts{
		Name: "facr_services_omitted",
		Help: "Number of optional services that produced no rules",
	})
	r.CandidateRules = factory.NewGauge(prometheus.GaugeOpts{
		Name: "facr_candidate_rules",
		Help: "Rules produced by selector expansion before merging",
	})
	r.CompiledRules = factory.NewGauge(prometheus.GaugeOpts{
		Name: "facr_compiled_rules",
		Help: "Rules in the final table",
	})
	r.BroadRules = factory.NewGauge(prometheus.GaugeOpts{
		Name: "facr_broad_rules",
		Help: "Rules with an any or wide endpoint, or a wide port span",
	})
	r.Warnings = factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "facr_warnings",
		Help: "Compilation warnings by kind",
	}, []string{"kind"})
	r.InventoryHosts = factory.NewGauge(prometheus.GaugeOpts{
		Name: "facr_inventory_hosts",
		Help: "Hosts loaded from the inventory",
	})
	r.CompileDuration = factory.NewGauge(prometheus.GaugeOpts{
		Name: "facr_compile_duration_seconds",
		Help: "Wall time of the last compilation",
	})
	r.LastRun = factory.NewGauge(prometheus.GaugeOpts{
		Name: "facr_last_run_timestamp_seconds",
		Help: "Unix timestamp of the last successful run",
	})
	return r
}

// ObserveCompile records a finished compilation.
func (r *Registry) ObserveCompile(rep compiler.Report, took time.Duration) {
	r.ServicesCompiled.Set(float64(rep.Services))
	r.ServicesOmitted.Set(float64(len(rep.Omitted)))
	r.CandidateRules.Set(float64(rep.Candidates))
	r.CompiledRules.Set(float64(rep.Rules))
	r.BroadRules.Set(float64(rep.Broad))
	for _, kind := range []compiler.WarningKind{compiler.EmptySelector, compiler.ServiceOmitted, compiler.UnknownService} {
		r.Warnings.WithLabelValues(string(kind)).Set(0)
	}
	for _, w := range rep.Warnings {
		r.Warnings.WithLabelValues(string(w.Kind)).Inc()
	}
	r.CompileDuration.Set(took.Seconds())
	r.LastRun.SetToCurrentTime()
}

// WriteTextfile writes the registry in the node_exporter textfile
// collector format.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
