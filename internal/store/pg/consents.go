package pg

import (
	"context"
	"errors"

	"github.com/dropDatabas3/gatejohn/internal/domain/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Consents retorna el repositorio de consents.
func (s *Store) Consents() repository.ConsentRepository { return &consentRepo{s} }

type consentRepo struct{ s *Store }

func (r *consentRepo) Upsert(ctx context.Context, domainID, subject, clientID string, scopes []string) (*repository.Consent, error) {
	const q = `
		INSERT INTO consents (id, domain_id, subject, client_id, scopes, granted_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,NOW(),NOW())
		ON CONFLICT (domain_id, subject, client_id)
		DO UPDATE SET scopes=EXCLUDED.scopes, updated_at=NOW(), revoked_at=NULL
		RETURNING id, domain_id, subject, client_id, scopes, granted_at, updated_at, revoked_at`
	return scanConsent(r.s.pool.QueryRow(ctx, q, uuid.NewString(), domainID, subject, clientID, scopes))
}

func (r *consentRepo) Get(ctx context.Context, domainID, subject, clientID string) (*repository.Consent, error) {
	const q = `
		SELECT id, domain_id, subject, client_id, scopes, granted_at, updated_at, revoked_at
		FROM consents WHERE domain_id=$1 AND subject=$2 AND client_id=$3`
	return scanConsent(r.s.pool.QueryRow(ctx, q, domainID, subject, clientID))
}

func (r *consentRepo) Revoke(ctx context.Context, domainID, subject, clientID string) error {
	const q = `
		UPDATE consents SET revoked_at=NOW()
		WHERE domain_id=$1 AND subject=$2 AND client_id=$3 AND revoked_at IS NULL`
	ct, err := r.s.pool.Exec(ctx, q, domainID, subject, clientID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanConsent(row pgx.Row) (*repository.Consent, error) {
	var c repository.Consent
	err := row.Scan(&c.ID, &c.DomainID, &c.Subject, &c.ClientID, &c.Scopes,
		&c.GrantedAt, &c.UpdatedAt, &c.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}
