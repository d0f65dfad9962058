package pg

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/gatejohn/internal/domain/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Tokens retorna el repositorio de refresh tokens.
func (s *Store) Tokens() repository.TokenRepository { return &tokenRepo{s} }

type tokenRepo struct{ s *Store }

func (r *tokenRepo) Create(ctx context.Context, input repository.CreateRefreshTokenInput) (string, error) {
	id := uuid.NewString()
	// Un linaje nuevo queda enraizado en el ID de su primer token.
	lineage := input.LineageID
	if lineage == "" {
		lineage = id
	}
	const q = `
		INSERT INTO refresh_tokens (id, lineage_id, domain_id, client_id, subject, scopes,
			token_hash, issued_at, expires_at, rotated_from, rotated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,false)
		RETURNING id`
	now := time.Now().UTC()
	var out string
	err := r.s.pool.QueryRow(ctx, q, id, lineage, input.DomainID, input.ClientID, input.Subject,
		input.Scopes, input.TokenHash, now, now.Add(input.TTL), input.RotatedFrom).Scan(&out)
	if err != nil {
		return "", err
	}
	return out, nil
}

const tokenCols = `id, lineage_id, domain_id, client_id, subject, scopes, token_hash,
	issued_at, expires_at, rotated_from, rotated, revoked_at`

func scanToken(row pgx.Row) (*repository.RefreshToken, error) {
	var t repository.RefreshToken
	err := row.Scan(&t.ID, &t.LineageID, &t.DomainID, &t.ClientID, &t.Subject, &t.Scopes,
		&t.TokenHash, &t.IssuedAt, &t.ExpiresAt, &t.RotatedFrom, &t.Rotated, &t.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *tokenRepo) GetByHash(ctx context.Context, tokenHash string) (*repository.RefreshToken, error) {
	const q = `SELECT ` + tokenCols + ` FROM refresh_tokens WHERE token_hash=$1`
	return scanToken(r.s.pool.QueryRow(ctx, q, tokenHash))
}

// Rotate es el conditional update de rotación: un solo ganador por token.
func (r *tokenRepo) Rotate(ctx context.Context, tokenID string) error {
	const q = `UPDATE refresh_tokens SET rotated=true WHERE id=$1 AND rotated=false`
	ct, err := r.s.pool.Exec(ctx, q, tokenID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM refresh_tokens WHERE id=$1)`, tokenID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return repository.ErrAlreadyRotated
	}
	return repository.ErrNotFound
}

func (r *tokenRepo) Revoke(ctx context.Context, tokenID string) error {
	const q = `UPDATE refresh_tokens SET revoked_at=NOW() WHERE id=$1 AND revoked_at IS NULL`
	_, err := r.s.pool.Exec(ctx, q, tokenID)
	return err
}

func (r *tokenRepo) RevokeLineage(ctx context.Context, lineageID string) (int, error) {
	const q = `UPDATE refresh_tokens SET revoked_at=NOW() WHERE lineage_id=$1 AND revoked_at IS NULL`
	ct, err := r.s.pool.Exec(ctx, q, lineageID)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func (r *tokenRepo) ListLineage(ctx context.Context, lineageID string) ([]repository.RefreshToken, error) {
	const q = `SELECT ` + tokenCols + ` FROM refresh_tokens WHERE lineage_id=$1 ORDER BY issued_at`
	rows, err := r.s.pool.Query(ctx, q, lineageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.RefreshToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
