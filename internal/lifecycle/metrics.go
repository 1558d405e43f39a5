package lifecycle

import "github.com/prometheus/client_golang/prometheus"

// thingLifecycleOperationsTotal counts every Lifecycle Engine operation
// by its outcome, grounded on internal/server/middleware.go's
// CounterVec-plus-init()-registration idiom.
var thingLifecycleOperationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "thing_lifecycle_operations_total",
		Help: "Total number of thing lifecycle operations by outcome.",
	},
	[]string{"op", "result"},
)

func init() {
	prometheus.MustRegister(thingLifecycleOperationsTotal)
}

func observeOp(op string, terr string) {
	thingLifecycleOperationsTotal.WithLabelValues(op, terr).Inc()
}
