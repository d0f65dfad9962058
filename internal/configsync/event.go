// Package configsync mantiene la vista node-local de dominios y clients
// consistente con el management plane.
//
// El management plane publica SyncEvents (at-least-once, ordenados por
// entidad); cada nodo de gateway los consume en un task dedicado. Las
// lecturas del request path nunca bloquean en red: un entry STALE se sirve
// con el último valor bueno mientras un refresh eager converge en
// background. Los deletes son la excepción: tombstone inmediato, fail-closed.
package configsync

import "fmt"

// EntityType identifica la entidad afectada por un evento.
type EntityType string

const (
	EntityDomain EntityType = "domain"
	EntityClient EntityType = "client"
)

// Op es la operación del management plane.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event es la notificación de cambio publicada por el management plane.
// Revision es monótona por entidad: un evento con revisión menor o igual a
// la cacheada se descarta (tolera duplicados y reordenamiento entre
// entidades distintas).
type Event struct {
	Entity   EntityType `json:"entity"`
	ID       string     `json:"id"`
	Op       Op         `json:"op"`
	Revision int64      `json:"revision"`
}

// Valid verifica la forma mínima del evento.
func (e Event) Valid() error {
	if e.Entity != EntityDomain && e.Entity != EntityClient {
		return fmt.Errorf("configsync: unknown entity %q", e.Entity)
	}
	if e.ID == "" {
		return fmt.Errorf("configsync: event without entity id")
	}
	if e.Op != OpCreate && e.Op != OpUpdate && e.Op != OpDelete {
		return fmt.Errorf("configsync: unknown op %q", e.Op)
	}
	return nil
}

func (e Event) key() string { return string(e.Entity) + ":" + e.ID }
