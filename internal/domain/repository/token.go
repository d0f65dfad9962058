package repository

import (
	"context"
	"time"
)

// RefreshToken representa un refresh token opaco.
// LineageID agrupa la cadena de rotaciones que desciende del grant original:
// revocar cualquier miembro invalida el linaje completo.
type RefreshToken struct {
	ID          string
	LineageID   string
	DomainID    string
	ClientID    string
	Subject     string
	Scopes      []string
	TokenHash   string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	RotatedFrom *string
	Rotated     bool
	RevokedAt   *time.Time
}

// Active reporta si el token sigue siendo redimible.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && !t.Rotated && now.Before(t.ExpiresAt)
}

// CreateRefreshTokenInput contiene los datos para crear un refresh token.
type CreateRefreshTokenInput struct {
	LineageID   string // vacío = linaje nuevo
	DomainID    string
	ClientID    string
	Subject     string
	Scopes      []string
	TokenHash   string
	TTL         time.Duration
	RotatedFrom *string
}

// TokenRepository define operaciones sobre refresh tokens y el denylist de
// access tokens revocados.
type TokenRepository interface {
	// Create crea un refresh token. Retorna el ID del token creado.
	Create(ctx context.Context, input CreateRefreshTokenInput) (string, error)

	// GetByHash busca un token por su hash. Retorna ErrNotFound si no existe.
	GetByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// Rotate marca el token como rotado, de forma condicional: solo el primer
	// caller gana; los demás reciben ErrAlreadyRotated. Un token rotado deja
	// de ser redimible pero conserva su linaje.
	Rotate(ctx context.Context, tokenID string) error

	// Revoke revoca un token por ID (idempotente).
	Revoke(ctx context.Context, tokenID string) error

	// RevokeLineage revoca todos los tokens del linaje, rotados o no.
	// Retorna el número de tokens revocados.
	RevokeLineage(ctx context.Context, lineageID string) (int, error)

	// ListLineage lista los tokens de un linaje (para el cascade sobre
	// access tokens emitidos por el linaje).
	ListLineage(ctx context.Context, lineageID string) ([]RefreshToken, error)
}
