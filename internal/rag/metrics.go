package rag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pdfquiz",
		Subsystem: "ingest",
		Name:      "pages_total",
		Help:      "Pages kept after extraction, by extraction method.",
	}, []string{"method"})

	ingestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pdfquiz",
		Subsystem: "ingest",
		Name:      "duration_seconds",
		Help:      "End-to-end ingestion latency by result.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"result"})

	chunksIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pdfquiz",
		Subsystem: "index",
		Name:      "entries_total",
		Help:      "Entries written to the vector store.",
	})

	visibilityTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pdfquiz",
		Subsystem: "index",
		Name:      "visibility_timeouts_total",
		Help:      "Writes whose query visibility was never confirmed.",
	})

	retrievals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pdfquiz",
		Subsystem: "retrieval",
		Name:      "requests_total",
		Help:      "Retrievals by strategy and outcome.",
	}, []string{"strategy", "outcome"})
)
