package pg

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/gatejohn/internal/domain/repository"
	"github.com/jackc/pgx/v5"
)

// Domains retorna el repositorio de dominios.
func (s *Store) Domains() repository.DomainRepository { return &domainRepo{s} }

// Clients retorna el repositorio de clients.
func (s *Store) Clients() repository.ClientRepository { return &clientRepo{s} }

type domainRepo struct{ s *Store }

const domainCols = `id, name, enabled, code_ttl_s, access_ttl_s, refresh_ttl_s, id_token_ttl_s,
	grant_types, scopes, require_consent, lenient_scopes, rotate_refresh,
	issuer_mode, issuer_override, revision, created_at, updated_at`

func scanDomain(row pgx.Row) (*repository.Domain, error) {
	var d repository.Domain
	var codeTTL, accessTTL, refreshTTL, idTTL int64
	err := row.Scan(&d.ID, &d.Name, &d.Enabled, &codeTTL, &accessTTL, &refreshTTL, &idTTL,
		&d.GrantTypes, &d.Scopes, &d.RequireConsent, &d.LenientScopes, &d.RotateRefreshTokens,
		&d.IssuerMode, &d.IssuerOverride, &d.Revision, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	d.CodeTTL = time.Duration(codeTTL) * time.Second
	d.AccessTokenTTL = time.Duration(accessTTL) * time.Second
	d.RefreshTokenTTL = time.Duration(refreshTTL) * time.Second
	d.IDTokenTTL = time.Duration(idTTL) * time.Second
	return &d, nil
}

func (r *domainRepo) Get(ctx context.Context, id string) (*repository.Domain, error) {
	const q = `SELECT ` + domainCols + ` FROM domains WHERE id=$1`
	return scanDomain(r.s.pool.QueryRow(ctx, q, id))
}

func (r *domainRepo) List(ctx context.Context) ([]repository.Domain, error) {
	const q = `SELECT ` + domainCols + ` FROM domains ORDER BY id`
	rows, err := r.s.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

type clientRepo struct{ s *Store }

const clientCols = `id, domain_id, client_id, name, auth_method, secret_hash, assertion_key_pem,
	grant_types, scopes, redirect_uris, providers,
	access_ttl_s, refresh_ttl_s, id_token_ttl_s, revision, created_at, updated_at`

func scanClient(row pgx.Row) (*repository.Client, error) {
	var c repository.Client
	err := row.Scan(&c.ID, &c.DomainID, &c.ClientID, &c.Name, &c.AuthMethod, &c.SecretHash, &c.AssertionKeyPEM,
		&c.GrantTypes, &c.Scopes, &c.RedirectURIs, &c.Providers,
		&c.AccessTokenTTL, &c.RefreshTokenTTL, &c.IDTokenTTL, &c.Revision, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *clientRepo) Get(ctx context.Context, clientID string) (*repository.Client, error) {
	const q = `SELECT ` + clientCols + ` FROM clients WHERE client_id=$1`
	return scanClient(r.s.pool.QueryRow(ctx, q, clientID))
}

func (r *clientRepo) ListByDomain(ctx context.Context, domainID string) ([]repository.Client, error) {
	const q = `SELECT ` + clientCols + ` FROM clients WHERE domain_id=$1 ORDER BY client_id`
	rows, err := r.s.pool.Query(ctx, q, domainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
