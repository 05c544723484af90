package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics содержит счётчики внешне наблюдаемых исходов
type Metrics struct {
	SubmissionsTotal   *prometheus.CounterVec
	WebhooksTotal      *prometheus.CounterVec
	TokensIssuedTotal  prometheus.Counter
	TokensDeniedTotal  *prometheus.CounterVec
	DriftFindingsTotal *prometheus.CounterVec
}

// New регистрирует счётчики в переданном регистре
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SubmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamvault_submissions_total",
			Help: "Migration submission attempts by outcome",
		}, []string{"outcome"}),
		WebhooksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamvault_webhooks_total",
			Help: "Encoding-status webhook deliveries by outcome",
		}, []string{"outcome"}),
		TokensIssuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamvault_playback_tokens_issued_total",
			Help: "Playback tokens issued",
		}),
		TokensDeniedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamvault_playback_tokens_denied_total",
			Help: "Playback token requests denied by reason",
		}, []string{"reason"}),
		DriftFindingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamvault_drift_findings_total",
			Help: "Drift audit findings by kind",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.SubmissionsTotal,
		m.WebhooksTotal,
		m.TokensIssuedTotal,
		m.TokensDeniedTotal,
		m.DriftFindingsTotal,
	)

	return m
}
