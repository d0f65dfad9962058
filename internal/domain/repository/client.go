package repository

import (
	"context"
	"time"
)

// Métodos de autenticación de cliente (RFC 6749 §2.3 / OIDC core §9).
const (
	AuthMethodSecretBasic   = "client_secret_basic"
	AuthMethodSecretPost    = "client_secret_post"
	AuthMethodNone          = "none" // público, requiere PKCE
	AuthMethodPrivateKeyJWT = "private_key_jwt"
)

// Client representa una aplicación registrada en un dominio.
type Client struct {
	ID         string
	DomainID   string
	ClientID   string // identificador público
	Name       string
	AuthMethod string // ver AuthMethod*

	// SecretHash es el hash argon2id (PHC string) del client secret, para
	// los métodos secret_basic y secret_post. Vacío para clients públicos.
	SecretHash string

	// AssertionKeyPEM es la clave pública registrada para private_key_jwt
	// (PEM, Ed25519 o RSA).
	AssertionKeyPEM string

	GrantTypes   []string
	Scopes       []string
	RedirectURIs []string

	// Providers son los identity providers asociados (password, ldap, ...).
	Providers []string

	// TTL overrides por client, en segundos. 0 = usar policy del dominio.
	AccessTokenTTL  int
	RefreshTokenTTL int
	IDTokenTTL      int

	Revision  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Public indica si el client es público (sin credencial propia).
func (c *Client) Public() bool {
	return c.AuthMethod == AuthMethodNone
}

// GrantTypeAllowed verifica si el grant type está permitido para el client.
func (c *Client) GrantTypeAllowed(gt string) bool {
	for _, g := range c.GrantTypes {
		if g == gt {
			return true
		}
	}
	return false
}

// RedirectURIAllowed verifica la redirect URI con match exacto.
func (c *Client) RedirectURIAllowed(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// ClientRepository define lecturas del authoritative store de clients.
type ClientRepository interface {
	// Get obtiene un client por su client_id público.
	// Retorna ErrNotFound si no existe.
	Get(ctx context.Context, clientID string) (*Client, error)

	// ListByDomain lista los clients de un dominio.
	ListByDomain(ctx context.Context, domainID string) ([]Client, error)
}
