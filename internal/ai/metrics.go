package ai

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var embeddingRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pdfquiz",
	Subsystem: "embedding",
	Name:      "requests_total",
	Help:      "Embedding requests by outcome.",
}, []string{"outcome"})
