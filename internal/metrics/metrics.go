// Package metrics defines the analyzer's prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for UnitsAnalyzed.
const (
	OutcomeOK        = "ok"
	OutcomeFailed    = "failed"
	OutcomeUnchanged = "unchanged"
)

var (
	UnitsAnalyzed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outline_units_analyzed_total",
		Help: "Source units processed, by outcome.",
	}, []string{"outcome"})

	Diagnostics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outline_diagnostics_total",
		Help: "Non-fatal diagnostics recorded, by kind.",
	}, []string{"kind"})

	FatalErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outline_fatal_errors_total",
		Help: "Source units that failed analysis, by error kind.",
	}, []string{"kind"})

	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outline_analysis_seconds",
		Help:    "Time spent on analysis tasks.",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})

	RuleFindings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outline_rule_findings_total",
		Help: "Findings reported by rule scripts, by rule.",
	}, []string{"rule"})

	OracleMismatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outline_oracle_mismatches_total",
		Help: "Entity count disagreements with the tree-sitter oracle, by entity.",
	}, []string{"entity"})

	ProjectModules = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "outline_project_modules",
		Help: "Modules currently held in the project index.",
	})
)
