package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's domain counters
type Metrics struct {
	Votes          *prometheus.CounterVec
	FeedEvents     *prometheus.CounterVec
	FeedRejections *prometheus.CounterVec
	WSClients      prometheus.Gauge
}

// NewMetrics creates and registers the domain collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forum_votes_total",
			Help: "Vote toggles by target type and transition.",
		}, []string{"target_type", "transition"}),
		FeedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forum_feed_events_total",
			Help: "Conversation feed events published, by type.",
		}, []string{"type"}),
		FeedRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forum_feed_rejections_total",
			Help: "Messages rejected by the conversation service, by reason code.",
		}, []string{"code"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forum_ws_clients",
			Help: "Currently connected websocket clients.",
		}),
	}
	reg.MustRegister(m.Votes, m.FeedEvents, m.FeedRejections, m.WSClients)
	return m
}
