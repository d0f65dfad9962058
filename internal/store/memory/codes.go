package memory

import (
	"context"
	"time"

	"github.com/dropDatabas3/gatejohn/internal/domain/repository"
)

type codeRepo Store

func (r *codeRepo) Put(ctx context.Context, code *repository.AuthorizationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// El barrido en cada Put mantiene el mapa acotado al volumen de códigos
	// vivos; acá no hay TTL nativo como en redis.
	now := time.Now().UTC()
	for h, c := range r.codes {
		if c.Expired(now) {
			delete(r.codes, h)
		}
	}
	if _, exists := r.codes[code.CodeHash]; exists {
		return repository.ErrConflict
	}
	r.codes[code.CodeHash] = *code
	return nil
}

// Consume es check-and-consume bajo el lock del store: exactamente un caller
// observa consumed=false y lo voltea. Un código vencido se descarta acá mismo.
func (r *codeRepo) Consume(ctx context.Context, codeHash string) (*repository.AuthorizationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[codeHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if c.Expired(time.Now().UTC()) {
		delete(r.codes, codeHash)
		return nil, repository.ErrNotFound
	}
	if c.Consumed {
		return nil, repository.ErrAlreadyConsumed
	}
	c.Consumed = true
	r.codes[codeHash] = c
	out := c
	return &out, nil
}

func (r *codeRepo) Delete(ctx context.Context, codeHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.codes, codeHash)
	return nil
}
