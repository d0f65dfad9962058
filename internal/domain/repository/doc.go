// Package repository define las interfaces de repositorio de dominio.
//
// Estas interfaces representan contratos de negocio, independientes del
// almacenamiento subyacente (PostgreSQL, Redis, memoria).
//
// Las implementaciones concretas viven en internal/store/.
//
// Convenciones:
//   - Context siempre es el primer parámetro
//   - Errores de dominio están en errors.go
//   - Las operaciones check-and-consume (códigos, rotación de refresh tokens)
//     son condicionales contra el store: exactamente un ganador bajo concurrencia,
//     incluso con varios nodos de gateway compartiendo el mismo backend.
package repository
