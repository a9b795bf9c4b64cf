package webhook

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// depthFn is installed by NewServer so the gauge can read live pool depth.
var (
	depthMu sync.Mutex
	depthFn func() int
)

func setDepthFunc(fn func() int) {
	depthMu.Lock()
	defer depthMu.Unlock()
	depthFn = fn
}

var (
	eventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muster_webhook_events_total",
		Help: "Webhook deliveries accepted, by source and kind.",
	}, []string{"source", "kind"})

	eventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muster_webhook_rejected_total",
		Help: "Webhook deliveries rejected before dispatch, by reason.",
	}, []string{"reason"})

	jobsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muster_jobs_dispatched_total",
		Help: "Lifecycle events handed to the state machine, by kind.",
	}, []string{"kind"})

	queueDepth = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "muster_queue_depth",
		Help: "Jobs waiting for a free worker.",
	}, func() float64 {
		depthMu.Lock()
		defer depthMu.Unlock()
		if depthFn == nil {
			return 0
		}
		return float64(depthFn())
	})
)
