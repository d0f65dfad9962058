package memory

import (
	"context"
	"time"

	"github.com/dropDatabas3/gatejohn/internal/domain/repository"
	"github.com/google/uuid"
)

type consentRepo Store

func consentKey(domainID, subject, clientID string) string {
	return domainID + "|" + subject + "|" + clientID
}

func (r *consentRepo) Upsert(ctx context.Context, domainID, subject, clientID string, scopes []string) (*repository.Consent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := consentKey(domainID, subject, clientID)
	now := time.Now().UTC()
	c, ok := r.consents[key]
	if !ok {
		c = repository.Consent{
			ID:        uuid.NewString(),
			DomainID:  domainID,
			Subject:   subject,
			ClientID:  clientID,
			GrantedAt: now,
		}
	}
	c.Scopes = append([]string(nil), scopes...)
	c.UpdatedAt = now
	c.RevokedAt = nil
	r.consents[key] = c
	out := c
	return &out, nil
}

func (r *consentRepo) Get(ctx context.Context, domainID, subject, clientID string) (*repository.Consent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.consents[consentKey(domainID, subject, clientID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := c
	return &out, nil
}

func (r *consentRepo) Revoke(ctx context.Context, domainID, subject, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := consentKey(domainID, subject, clientID)
	c, ok := r.consents[key]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	c.RevokedAt = &now
	r.consents[key] = c
	return nil
}
