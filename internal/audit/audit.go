// Package audit registra eventos de seguridad (grants, revocaciones,
// cambios de configuración aplicados) como log estructurado. Hoy el sink es
// el logger; la firma deja espacio para un sink externo.
package audit

import (
	"context"

	"github.com/dropDatabas3/gatejohn/internal/observability/logger"
)

// Eventos conocidos.
const (
	EventGrantIssued    = "grant.issued"
	EventGrantDenied    = "grant.denied"
	EventTokenRevoked   = "token.revoked"
	EventLineageRevoked = "token.lineage_revoked"
	EventSyncApplied    = "sync.applied"
	EventSyncRemoved    = "sync.removed"
)

// Log escribe un evento de auditoría con campos estructurados.
func Log(ctx context.Context, event string, fields map[string]any) {
	log := logger.From(ctx).With(logger.Component("audit"), logger.String("event", event))
	for k, v := range fields {
		log = log.With(logger.Any(k, v))
	}
	log.Info("audit event")
}
