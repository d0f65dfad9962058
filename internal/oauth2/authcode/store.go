// Package authcode implementa el Authorization Code Store: emisión y
// redención one-shot de códigos ligados a PKCE y redirect URI.
package authcode

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/gatejohn/internal/domain/repository"
	"github.com/dropDatabas3/gatejohn/internal/oauth2"
	"github.com/dropDatabas3/gatejohn/internal/observability/logger"
	"github.com/dropDatabas3/gatejohn/internal/security/pkce"
	tokens "github.com/dropDatabas3/gatejohn/internal/security/token"
)

// DefaultTTL es el TTL de códigos cuando el dominio no define uno.
const DefaultTTL = 120 * time.Second

// Store emite y redime authorization codes sobre un CodeRepository.
type Store struct {
	codes repository.CodeRepository
}

func NewStore(codes repository.CodeRepository) *Store {
	return &Store{codes: codes}
}

// IssueInput son los bindings del código.
type IssueInput struct {
	ClientID        string
	DomainID        string
	Subject         string
	Scopes          []string
	RedirectURI     string
	CodeChallenge   string
	ChallengeMethod string
	Nonce           string
	TTL             time.Duration
}

// Issue genera un código opaco criptográficamente aleatorio, persiste su
// hash con los bindings y arranca el reloj de expiración.
func (s *Store) Issue(ctx context.Context, in IssueInput) (string, error) {
	if in.ChallengeMethod != "" && !pkce.ValidMethod(in.ChallengeMethod) {
		return "", oauth2.ErrInvalidRequest.WithDescription("unsupported code_challenge_method")
	}
	ttl := in.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	raw, err := tokens.GenerateOpaque(32)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	rec := &repository.AuthorizationCode{
		CodeHash:        tokens.SHA256Base64URL(raw),
		ClientID:        in.ClientID,
		DomainID:        in.DomainID,
		Subject:         in.Subject,
		Scopes:          append([]string(nil), in.Scopes...),
		RedirectURI:     in.RedirectURI,
		CodeChallenge:   in.CodeChallenge,
		ChallengeMethod: in.ChallengeMethod,
		Nonce:           in.Nonce,
		IssuedAt:        now,
		ExpiresAt:       now.Add(ttl),
	}
	if err := s.codes.Put(ctx, rec); err != nil {
		return "", err
	}
	return raw, nil
}

// RedeemInput son los parámetros presentados en el token endpoint.
type RedeemInput struct {
	Code         string
	ClientID     string
	RedirectURI  string
	CodeVerifier string
}

// Redeem consume el código y valida bindings. El consume es lo primero y es
// atómico contra el store: bajo N redenciones concurrentes exactamente una
// obtiene el registro. Un intento con bindings inválidos también quema el
// código (RFC 6749 §4.1.2: un código comprometido no debe sobrevivir a un
// intento fallido).
//
// Todo camino de fallo colapsa en invalid_grant: no se le dice a un
// atacante si el código no existe, expiró o no le pertenece.
func (s *Store) Redeem(ctx context.Context, in RedeemInput) (*repository.AuthorizationCode, error) {
	log := logger.From(ctx).With(logger.Component("authcode"), logger.Op("redeem"))

	if in.Code == "" {
		return nil, oauth2.ErrInvalidGrant
	}

	rec, err := s.codes.Consume(ctx, tokens.SHA256Base64URL(in.Code))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrAlreadyConsumed):
			log.Warn("authorization code not redeemable", logger.Err(err))
			return nil, oauth2.ErrInvalidGrant
		default:
			return nil, oauth2.ErrServerError.WithCause(err)
		}
	}

	if rec.Expired(time.Now().UTC()) {
		log.Warn("authorization code expired", logger.ClientID(rec.ClientID))
		return nil, oauth2.ErrInvalidGrant
	}
	if rec.ClientID != in.ClientID || rec.RedirectURI != in.RedirectURI {
		log.Warn("client or redirect_uri mismatch", logger.ClientID(in.ClientID))
		return nil, oauth2.ErrInvalidGrant
	}
	if rec.CodeChallenge != "" {
		if !pkce.Verify(rec.CodeChallenge, rec.ChallengeMethod, in.CodeVerifier) {
			log.Warn("pkce verification failed", logger.ClientID(in.ClientID))
			return nil, oauth2.ErrInvalidGrant
		}
	} else if in.CodeVerifier != "" {
		// Verifier sin challenge guardado: el código no fue emitido con PKCE.
		return nil, oauth2.ErrInvalidGrant
	}

	return rec, nil
}
