package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var storeOperations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "graphtrack",
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Graph store operations by name and outcome.",
	},
	[]string{"op", "result"},
)

func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	storeOperations.WithLabelValues(op, result).Inc()
}
