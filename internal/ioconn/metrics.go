package ioconn

import "github.com/prometheus/client_golang/prometheus"

// ioconnectionPropagationsTotal counts every IO connection propagation
// attempt by its outcome, grounded on internal/server/middleware.go's
// CounterVec-plus-init()-registration idiom.
var ioconnectionPropagationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ioconnection_propagations_total",
		Help: "Total number of IO connection propagations by outcome.",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(ioconnectionPropagationsTotal)
}

func observePropagation(result string) {
	ioconnectionPropagationsTotal.WithLabelValues(result).Inc()
}
