// Package metrics define las métricas Prometheus del gateway. Viven en un
// package standalone para evitar ciclos de import entre granter, configsync
// y la capa HTTP.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ─── Grant engine ───

	GrantsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatejohn_grants_total",
		Help: "Grant evaluations por grant_type y resultado (ok o error code)",
	}, []string{"grant_type", "result"})

	GrantDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gatejohn_grant_duration_seconds",
		Help:    "Latencia de evaluación de grants",
		Buckets: prometheus.DefBuckets,
	}, []string{"grant_type"})

	TokensMinted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatejohn_tokens_minted_total",
		Help: "Tokens emitidos por tipo (access, refresh, id)",
	}, []string{"type"})

	TokensRevoked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gatejohn_tokens_revoked_total",
		Help: "Revocaciones procesadas (incluye cascades de linaje)",
	})

	// ─── Domain sync ───

	SyncEventsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatejohn_sync_events_applied_total",
		Help: "SyncEvents aplicados por entidad y operación",
	}, []string{"entity", "op"})

	SyncEventsDiscarded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gatejohn_sync_events_discarded_total",
		Help: "SyncEvents descartados por revisión vieja o duplicada",
	})

	SyncRefreshFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gatejohn_sync_refresh_failures_total",
		Help: "Refreshes agotados dejando el entry en stale",
	})

	SyncRefreshDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gatejohn_sync_refresh_duration_seconds",
		Help:    "Duración del refresh eager tras un SyncEvent",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)

// Register registra todas las métricas en el registry dado (o el default).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		GrantsTotal, GrantDuration, TokensMinted, TokensRevoked,
		SyncEventsApplied, SyncEventsDiscarded, SyncRefreshFailures, SyncRefreshDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
