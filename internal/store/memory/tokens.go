package memory

import (
	"context"
	"time"

	"github.com/dropDatabas3/gatejohn/internal/domain/repository"
	"github.com/google/uuid"
)

type tokenRepo Store

func (r *tokenRepo) Create(ctx context.Context, input repository.CreateRefreshTokenInput) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	// Un linaje nuevo queda enraizado en el ID de su primer token.
	lineage := input.LineageID
	if lineage == "" {
		lineage = id
	}
	now := time.Now().UTC()
	rt := repository.RefreshToken{
		ID:          id,
		LineageID:   lineage,
		DomainID:    input.DomainID,
		ClientID:    input.ClientID,
		Subject:     input.Subject,
		Scopes:      append([]string(nil), input.Scopes...),
		TokenHash:   input.TokenHash,
		IssuedAt:    now,
		ExpiresAt:   now.Add(input.TTL),
		RotatedFrom: input.RotatedFrom,
	}
	r.tokens[id] = rt
	r.byHash[input.TokenHash] = id
	return id, nil
}

func (r *tokenRepo) GetByHash(ctx context.Context, tokenHash string) (*repository.RefreshToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byHash[tokenHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	t := r.tokens[id]
	out := t
	return &out, nil
}

// Rotate voltea rotated false→true; solo el primer caller gana.
func (r *tokenRepo) Rotate(ctx context.Context, tokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[tokenID]
	if !ok {
		return repository.ErrNotFound
	}
	if t.Rotated {
		return repository.ErrAlreadyRotated
	}
	t.Rotated = true
	r.tokens[tokenID] = t
	return nil
}

func (r *tokenRepo) Revoke(ctx context.Context, tokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[tokenID]
	if !ok {
		return repository.ErrNotFound
	}
	if t.RevokedAt == nil {
		now := time.Now().UTC()
		t.RevokedAt = &now
		r.tokens[tokenID] = t
	}
	return nil
}

func (r *tokenRepo) RevokeLineage(ctx context.Context, lineageID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	n := 0
	for id, t := range r.tokens {
		if t.LineageID == lineageID && t.RevokedAt == nil {
			t.RevokedAt = &now
			r.tokens[id] = t
			n++
		}
	}
	return n, nil
}

func (r *tokenRepo) ListLineage(ctx context.Context, lineageID string) ([]repository.RefreshToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []repository.RefreshToken
	for _, t := range r.tokens {
		if t.LineageID == lineageID {
			out = append(out, t)
		}
	}
	return out, nil
}
