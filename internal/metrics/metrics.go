package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	InboundTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsrelay_inbound_total",
			Help: "Inbound webhook messages by classified command",
		},
		[]string{"command"}, // subscribe|unsubscribe|broadcast|ignored|invalid|duplicate
	)

	BroadcastSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsrelay_broadcast_sends_total",
			Help: "Outbound broadcast dispatches by outcome",
		},
		[]string{"outcome"}, // sent|failed
	)

	BroadcastFanout = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smsrelay_broadcast_fanout",
			Help:    "Number of active subscribers targeted per broadcast",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	ArchivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsrelay_archived_broadcasts_total",
			Help: "Broadcast events handled by the archiver",
		},
		[]string{"result"}, // stored|skipped|failed
	)
)

var registerOnce sync.Once

// MustRegister registers the collectors once per process; later calls are no-ops.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			InboundTotal,
			BroadcastSendsTotal,
			BroadcastFanout,
			ArchivedTotal,
		)
	})
}
