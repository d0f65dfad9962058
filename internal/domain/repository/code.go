package repository

import (
	"context"
	"time"
)

// AuthorizationCode representa un código de autorización single-use.
// El valor opaco nunca se persiste en claro: se guarda su hash.
type AuthorizationCode struct {
	CodeHash        string
	ClientID        string
	DomainID        string
	Subject         string
	Scopes          []string
	RedirectURI     string
	CodeChallenge   string
	ChallengeMethod string // "plain" | "S256"
	Nonce           string
	IssuedAt        time.Time
	ExpiresAt       time.Time
	Consumed        bool
}

// Expired reporta si el código ya superó su TTL.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// CodeRepository define la persistencia de authorization codes.
//
// Consume es el único camino de lectura de redención: marca consumed
// false→true y devuelve el registro en un solo paso condicional. Dos
// redenciones concurrentes del mismo código producen exactamente un éxito;
// la perdedora recibe ErrAlreadyConsumed.
type CodeRepository interface {
	// Put persiste un código recién emitido.
	Put(ctx context.Context, code *AuthorizationCode) error

	// Consume marca el código como consumido y lo retorna, de forma atómica.
	// Retorna ErrNotFound si no existe (o ya expiró y fue purgado) y
	// ErrAlreadyConsumed si otro caller ganó la carrera.
	Consume(ctx context.Context, codeHash string) (*AuthorizationCode, error)

	// Delete elimina un código (purga por TTL).
	Delete(ctx context.Context, codeHash string) error
}
