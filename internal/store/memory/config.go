package memory

import (
	"context"

	"github.com/dropDatabas3/gatejohn/internal/domain/repository"
)

type domainRepo Store

func (r *domainRepo) Get(ctx context.Context, id string) (*repository.Domain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.domains[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := d
	return &out, nil
}

func (r *domainRepo) List(ctx context.Context) ([]repository.Domain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]repository.Domain, 0, len(r.domains))
	for _, d := range r.domains {
		out = append(out, d)
	}
	return out, nil
}

type clientRepo Store

func (r *clientRepo) Get(ctx context.Context, clientID string) (*repository.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[clientID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := c
	return &out, nil
}

func (r *clientRepo) ListByDomain(ctx context.Context, domainID string) ([]repository.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []repository.Client
	for _, c := range r.clients {
		if c.DomainID == domainID {
			out = append(out, c)
		}
	}
	return out, nil
}
