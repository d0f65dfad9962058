package idp

import (
	"context"
	"sync"

	"github.com/dropDatabas3/gatejohn/internal/security/password"
)

// LocalProvider es un provider password-backed en memoria (argon2id).
// Sirve para desarrollo, seed y tests; producción registra adapters reales.
type LocalProvider struct {
	mu    sync.RWMutex
	users map[string]localUser
}

type localUser struct {
	subject string
	hash    string
}

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{users: make(map[string]localUser)}
}

// AddUser registra un usuario con su password en claro (se hashea acá).
func (p *LocalProvider) AddUser(username, subject, plain string) error {
	hash, err := password.Hash(password.Default, plain)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[username] = localUser{subject: subject, hash: hash}
	return nil
}

func (p *LocalProvider) Authenticate(ctx context.Context, username, credential string) (*Principal, error) {
	p.mu.RLock()
	u, ok := p.users[username]
	p.mu.RUnlock()
	if !ok || !password.Verify(credential, u.hash) {
		return nil, ErrAuthenticationFailed
	}
	return &Principal{Subject: u.subject, Username: username}, nil
}
