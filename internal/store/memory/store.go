// Package memory implementa los repositorios de dominio en memoria.
//
// Se usa en tests y en despliegues single-node de desarrollo. Las garantías
// condicionales (Consume, Rotate) se cumplen serializando bajo mutex; los
// adapters de producción las cumplen con conditional updates en el store.
package memory

import (
	"sync"

	"github.com/dropDatabas3/gatejohn/internal/domain/repository"
)

// Store agrupa los repositorios en memoria compartiendo un snapshot mutable.
type Store struct {
	mu sync.RWMutex

	domains  map[string]repository.Domain
	clients  map[string]repository.Client // key: client_id público
	codes    map[string]repository.AuthorizationCode
	tokens   map[string]repository.RefreshToken // key: token ID
	byHash   map[string]string                  // token hash -> ID
	consents map[string]repository.Consent      // key: domain|subject|client
}

func New() *Store {
	return &Store{
		domains:  make(map[string]repository.Domain),
		clients:  make(map[string]repository.Client),
		codes:    make(map[string]repository.AuthorizationCode),
		tokens:   make(map[string]repository.RefreshToken),
		byHash:   make(map[string]string),
		consents: make(map[string]repository.Consent),
	}
}

// Domains retorna el repositorio de dominios.
func (s *Store) Domains() repository.DomainRepository { return (*domainRepo)(s) }

// Clients retorna el repositorio de clients.
func (s *Store) Clients() repository.ClientRepository { return (*clientRepo)(s) }

// Codes retorna el repositorio de authorization codes.
func (s *Store) Codes() repository.CodeRepository { return (*codeRepo)(s) }

// Tokens retorna el repositorio de refresh tokens.
func (s *Store) Tokens() repository.TokenRepository { return (*tokenRepo)(s) }

// Consents retorna el repositorio de consents.
func (s *Store) Consents() repository.ConsentRepository { return (*consentRepo)(s) }

// ─── Seeding (management-plane writes, solo para tests/dev) ───

// PutDomain inserta o reemplaza un dominio.
func (s *Store) PutDomain(d repository.Domain) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.domains[d.ID] = d
}

// DeleteDomain elimina un dominio.
func (s *Store) DeleteDomain(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.domains, id)
}

// PutClient inserta o reemplaza un client.
func (s *Store) PutClient(c repository.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ClientID] = c
}

// DeleteClient elimina un client.
func (s *Store) DeleteClient(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, clientID)
}
