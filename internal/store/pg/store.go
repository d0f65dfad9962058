// Package pg implementa los repositorios de dominio sobre PostgreSQL (pgx).
//
// Las operaciones check-and-consume se expresan como conditional updates
// (UPDATE ... WHERE flag=false RETURNING ...): el row-level locking de
// Postgres garantiza exactamente un ganador aunque varios nodos de gateway
// compartan la misma base.
package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store envuelve el pool y expone los repositorios.
type Store struct{ pool *pgxpool.Pool }

// New crea el Store con un pool configurado.
func New(ctx context.Context, dsn string, maxConns int32, connMaxLifetime time.Duration) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		pcfg.MaxConns = maxConns
	}
	if connMaxLifetime <= 0 {
		connMaxLifetime = time.Hour
	}
	pcfg.MaxConnLifetime = connMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Ping verifica la conexión.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Pool expone el pool interno para usos avanzados (metrics/migraciones).
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}
