package storage

import "github.com/prometheus/client_golang/prometheus"

var (
	savesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gymrats",
		Subsystem: "persistence",
		Name:      "saves_total",
		Help:      "Number of gateway saves, labeled by key and outcome.",
	}, []string{"key", "outcome"})

	loadsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gymrats",
		Subsystem: "persistence",
		Name:      "loads_total",
		Help:      "Number of gateway loads, labeled by key and outcome (hit, miss, error).",
	}, []string{"key", "outcome"})

	lastSaveGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gymrats",
		Subsystem: "persistence",
		Name:      "last_successful_save_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful save.",
	})
)

func init() {
	prometheus.MustRegister(savesCounter, loadsCounter, lastSaveGauge)
}
