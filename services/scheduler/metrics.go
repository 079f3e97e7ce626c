package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "settlement",
		Subsystem: "scheduler",
		Name:      "jobs_scheduled_total",
		Help:      "Jobs persisted and armed, by type.",
	}, []string{"type"})

	jobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "settlement",
		Subsystem: "scheduler",
		Name:      "jobs_finished_total",
		Help:      "Job executions by type and outcome (executed, failed, retried).",
	}, []string{"type", "outcome"})

	armedTimers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "settlement",
		Subsystem: "scheduler",
		Name:      "armed_timers",
		Help:      "In-process timers currently pending.",
	})
)
