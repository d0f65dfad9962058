package pg

import (
	"context"
	"errors"

	"github.com/dropDatabas3/gatejohn/internal/domain/repository"
	"github.com/jackc/pgx/v5"
)

// Codes retorna el repositorio de authorization codes.
func (s *Store) Codes() repository.CodeRepository { return &codeRepo{s} }

type codeRepo struct{ s *Store }

func (r *codeRepo) Put(ctx context.Context, code *repository.AuthorizationCode) error {
	const q = `
		INSERT INTO auth_codes (code_hash, client_id, domain_id, subject, scopes, redirect_uri,
			code_challenge, challenge_method, nonce, issued_at, expires_at, consumed)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,false)`
	_, err := r.s.pool.Exec(ctx, q, code.CodeHash, code.ClientID, code.DomainID, code.Subject,
		code.Scopes, code.RedirectURI, code.CodeChallenge, code.ChallengeMethod, code.Nonce,
		code.IssuedAt, code.ExpiresAt)
	return err
}

// Consume voltea consumed false→true en un solo statement. El RETURNING
// entrega el registro solo al ganador; cualquier otro caller no matchea la
// cláusula WHERE y distingue ErrAlreadyConsumed de ErrNotFound con un
// segundo SELECT.
func (r *codeRepo) Consume(ctx context.Context, codeHash string) (*repository.AuthorizationCode, error) {
	const q = `
		UPDATE auth_codes SET consumed=true
		WHERE code_hash=$1 AND consumed=false
		RETURNING code_hash, client_id, domain_id, subject, scopes, redirect_uri,
			code_challenge, challenge_method, nonce, issued_at, expires_at, consumed`

	var c repository.AuthorizationCode
	err := r.s.pool.QueryRow(ctx, q, codeHash).Scan(
		&c.CodeHash, &c.ClientID, &c.DomainID, &c.Subject, &c.Scopes, &c.RedirectURI,
		&c.CodeChallenge, &c.ChallengeMethod, &c.Nonce, &c.IssuedAt, &c.ExpiresAt, &c.Consumed)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	var exists bool
	if err := r.s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM auth_codes WHERE code_hash=$1)`, codeHash).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, repository.ErrAlreadyConsumed
	}
	return nil, repository.ErrNotFound
}

func (r *codeRepo) Delete(ctx context.Context, codeHash string) error {
	_, err := r.s.pool.Exec(ctx, `DELETE FROM auth_codes WHERE code_hash=$1`, codeHash)
	return err
}
