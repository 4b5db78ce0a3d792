// Package metrics holds the prometheus collectors for the claim workflow.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lostfound"

var (
	ClaimsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "claims_created_total",
		Help:      "Claims created, by trust band.",
	}, []string{"band"})

	ClaimTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "claim_transitions_total",
		Help:      "Claim status moves, by target status.",
	}, []string{"to"})

	ClaimsRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "claims_rate_limited_total",
		Help:      "Claim creations refused by the rate limiter.",
	})

	HandoffCodesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "handoff_codes_issued_total",
		Help:      "Handoff codes generated.",
	})

	HandoffConfirmFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "handoff_confirm_failures_total",
		Help:      "Handoff confirmations rejected for a wrong code.",
	})

	MessagesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_appended_total",
		Help:      "Chat messages stored, by whether links were stripped.",
	}, []string{"filtered"})

	SweepAffected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_affected_total",
		Help:      "Rows changed by the periodic sweep.",
	}, []string{"kind"})

	LiveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "chat_live_subscribers",
		Help:      "Open live chat subscriptions.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
