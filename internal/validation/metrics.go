package validation

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesValidated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphtrack",
			Subsystem: "validation",
			Name:      "batches_total",
			Help:      "Validated batches by verdict.",
		},
		[]string{"usable"},
	)
	issuesReported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphtrack",
			Subsystem: "validation",
			Name:      "issues_total",
			Help:      "Validation issues by entity and code.",
		},
		[]string{"entity", "code"},
	)
)

// Observe counts a finished report and its issues.
func Observe(report Report) {
	batchesValidated.WithLabelValues(strconv.FormatBool(report.Usable)).Inc()
	for _, issue := range report.Errors {
		issuesReported.WithLabelValues(issue.Entity, issue.Code).Inc()
	}
	for _, issue := range report.Warnings {
		issuesReported.WithLabelValues(issue.Entity, issue.Code).Inc()
	}
}
