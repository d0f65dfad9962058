package repository

import (
	"context"
	"time"
)

// Domain representa un security domain (realm a nivel tenant).
// El management plane es el dueño; los nodos de gateway mantienen una copia
// cacheada de solo lectura, refrescada por el sync manager.
type Domain struct {
	ID      string
	Name    string
	Enabled bool

	// TTL policy del dominio. Los clients pueden sobreescribir por token.
	CodeTTL         time.Duration // default 120s
	AccessTokenTTL  time.Duration // default 15m
	RefreshTokenTTL time.Duration // default 30d
	IDTokenTTL      time.Duration // default 15m

	// GrantTypes habilitados a nivel dominio. Vacío = ninguno.
	GrantTypes []string

	// Scopes permitidos a nivel dominio. Los scopes efectivos de un client
	// son siempre un subconjunto de estos, evaluado en cada grant.
	Scopes []string

	// RequireConsent exige consentimiento del usuario para scopes no cubiertos.
	RequireConsent bool

	// LenientScopes habilita narrowing silencioso de scopes sobre-pedidos.
	// Default false: un scope fuera de lo permitido falla con invalid_scope.
	LenientScopes bool

	// RotateRefreshTokens habilita rotación de refresh tokens en cada uso.
	RotateRefreshTokens bool

	// IssuerMode / IssuerOverride configuran el issuer efectivo del dominio.
	IssuerMode     string // "global" | "path"
	IssuerOverride string

	// Revision es el marcador monótono del management plane.
	Revision  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GrantTypeEnabled verifica si el dominio habilita el grant type.
func (d *Domain) GrantTypeEnabled(gt string) bool {
	for _, g := range d.GrantTypes {
		if g == gt {
			return true
		}
	}
	return false
}

// DomainRepository define lecturas del authoritative store de dominios.
type DomainRepository interface {
	// Get obtiene un dominio por ID. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, id string) (*Domain, error)

	// List lista todos los dominios (cold start / full reload).
	List(ctx context.Context) ([]Domain, error)
}
