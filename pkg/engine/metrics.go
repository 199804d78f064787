package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ConstraintsBound counts target nodes that received a new source
	ConstraintsBound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rigbind_constraints_bound_total",
			Help: "Total number of constraints bound to a source",
		},
		[]string{"kind"},
	)

	// ConstraintsRemoved counts constraints destroyed by reset
	ConstraintsRemoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rigbind_constraints_removed_total",
			Help: "Total number of constraints removed by reset",
		},
		[]string{"kind"},
	)

	// OperationErrors counts failed operations by reason
	OperationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rigbind_operation_errors_total",
			Help: "Total number of failed operations",
		},
		[]string{"operation", "reason"},
	)

	// EventsArchived counts journal events moved to blob storage
	EventsArchived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rigbind_events_archived_total",
			Help: "Total number of journal events moved to the archive",
		},
	)

	// NodesFlattened tracks the size of the last flattened hierarchy
	NodesFlattened = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rigbind_nodes_flattened",
			Help: "Number of nodes in the last flattened hierarchy",
		},
		[]string{"side"},
	)
)

func init() {
	// Register metrics with the default registry
	prometheus.MustRegister(ConstraintsBound)
	prometheus.MustRegister(ConstraintsRemoved)
	prometheus.MustRegister(OperationErrors)
	prometheus.MustRegister(NodesFlattened)
	prometheus.MustRegister(EventsArchived)
}
