package services

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/VanZoel112/vzoelfess/internal/core/domain"
)

var submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vzoelfess_submissions_total",
	Help: "Number of submissions by admission outcome",
}, []string{"outcome"})

var moderationDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vzoelfess_moderation_decisions_total",
	Help: "Number of admin decisions applied",
}, []string{"decision"})

var publishResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vzoelfess_publish_results_total",
	Help: "Number of channel publish outcomes",
}, []string{"result"})

var backendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vzoelfess_rate_backend_failures_total",
	Help: "Number of rate limit backend call failures",
}, []string{"backend"})

var backendStateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "vzoelfess_rate_backend_state",
	Help: "Rate limit backend health state (0 healthy, 1 probing, 2 down)",
}, []string{"backend"})

func observeBackendState(backend string, state BackendState) {
	backendStateGauge.WithLabelValues(backend).Set(float64(state))
}

func submissionOutcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, domain.ErrBanned):
		return "banned"
	case errors.Is(err, domain.ErrCooldown):
		return "cooldown"
	case errors.Is(err, domain.ErrHourlyLimitExceeded):
		return "hourly_limit"
	case errors.Is(err, domain.ErrDailyLimitExceeded):
		return "daily_limit"
	case errors.Is(err, domain.ErrNoHashtag):
		return "no_hashtag"
	case errors.Is(err, domain.ErrTooManyHashtags):
		return "too_many_hashtags"
	case errors.Is(err, domain.ErrEmptyBody):
		return "empty_body"
	case errors.Is(err, domain.ErrBackendUnavailable):
		return "backend_unavailable"
	default:
		return "error"
	}
}
