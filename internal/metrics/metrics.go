package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Message outcomes recorded by MessagesRouted.
const (
	OutcomeDelivered = "delivered"
	OutcomeQueued    = "queued"
)

var (
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairchat_connections",
		Help: "Number of open client connections.",
	})

	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairchat_online_users",
		Help: "Number of usernames in the online pool.",
	})

	ActivePairings = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairchat_active_pairings",
		Help: "Number of mutual partner pairings.",
	})

	PairingsFormed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairchat_pairings_formed_total",
		Help: "Pairings formed by presence transitions.",
	})

	MessagesRouted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairchat_messages_routed_total",
		Help: "Chat messages persisted by the router, by delivery outcome.",
	}, []string{"outcome"})

	MessagesFlushed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairchat_messages_flushed_total",
		Help: "Queued messages delivered on reconnect.",
	})

	EventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairchat_events_dropped_total",
		Help: "Inbound events dropped before dispatch, by reason.",
	}, []string{"reason"})

	StoreErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairchat_store_errors_total",
		Help: "Durable store failures surfaced to event handlers, by event.",
	}, []string{"event"})
)

func init() {
	prometheus.MustRegister(
		Connections,
		OnlineUsers,
		ActivePairings,
		PairingsFormed,
		MessagesRouted,
		MessagesFlushed,
		EventsDropped,
		StoreErrors,
	)
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
