package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// invitesTotal counts invite transitions by outcome
	// (created, accepted, declined, revoked, expired).
	invitesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traderobots_invites_total",
			Help: "Invite lifecycle transitions by outcome.",
		},
		[]string{"outcome"},
	)

	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traderobots_analyses_total",
			Help: "Analyses by kind and result.",
		},
		[]string{"kind", "result"},
	)

	tokensDebited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "traderobots_tokens_debited_total",
			Help: "Tokens charged for analyses.",
		},
	)
)

func init() {
	prometheus.MustRegister(invitesTotal, analysesTotal, tokensDebited)
}

// CountExpiredInvites records invites closed by the expiry sweep.
func CountExpiredInvites(n int64) {
	if n > 0 {
		invitesTotal.WithLabelValues("expired").Add(float64(n))
	}
}
