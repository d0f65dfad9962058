// Package idp define el colaborador de identity providers. El gateway no
// sabe cómo se autentica un principal (LDAP, SAML, social); solo consume el
// resultado. Los adapters concretos se registran por nombre.
package idp

import (
	"context"
	"errors"
	"sync"
)

// Principal es el resultado de una autenticación exitosa.
type Principal struct {
	Subject  string
	Username string
	Claims   map[string]any
}

// ErrAuthenticationFailed indica credenciales inválidas o usuario inexistente.
// Los adapters no distinguen entre ambos.
var ErrAuthenticationFailed = errors.New("idp: authentication failed")

// Provider autentica un principal contra un backend de identidad.
type Provider interface {
	// Authenticate valida username+credential y retorna el principal.
	// Retorna ErrAuthenticationFailed en cualquier fallo de credenciales.
	Authenticate(ctx context.Context, username, credential string) (*Principal, error)
}

// Registry resuelve providers por nombre (los clients declaran cuáles usan).
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register asocia un provider a un nombre. Reemplaza si ya existía.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get retorna el provider registrado bajo el nombre, o nil.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}
