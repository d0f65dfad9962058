// Package token implements the token lifecycle: minting access/refresh/ID
// tokens, refresh rotation with reuse detection, introspection and
// revocation with lineage cascade.
//
// Access tokens are EdDSA JWTs; refresh tokens are opaque values stored
// hashed. Access tokens minted alongside a refresh lineage carry a "lin"
// claim so revoking the lineage kills them without tracking every jti.
package token

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"

	"github.com/dropDatabas3/gatejohn/internal/audit"
	"github.com/dropDatabas3/gatejohn/internal/cache"
	"github.com/dropDatabas3/gatejohn/internal/domain/repository"
	"github.com/dropDatabas3/gatejohn/internal/jwt"
	"github.com/dropDatabas3/gatejohn/internal/metrics"
	"github.com/dropDatabas3/gatejohn/internal/oauth2"
	"github.com/dropDatabas3/gatejohn/internal/oauth2/scope"
	"github.com/dropDatabas3/gatejohn/internal/observability/logger"
	tokens "github.com/dropDatabas3/gatejohn/internal/security/token"
)

// Default TTLs when neither the client nor the domain sets one.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
	DefaultIDTokenTTL = 15 * time.Minute
)

// Deps are the collaborators of the Service.
type Deps struct {
	Tokens   repository.TokenRepository
	Denylist cache.Client
	Issuer   *jwt.Issuer

	// DefaultIssuerMode applies to domains that don't set one. Empty means
	// global.
	DefaultIssuerMode string
}

// Service mints and manages tokens.
type Service struct {
	tokens     repository.TokenRepository
	denylist   cache.Client
	issuer     *jwt.Issuer
	issuerMode string
}

func NewService(d Deps) *Service {
	return &Service{tokens: d.Tokens, denylist: d.Denylist, issuer: d.Issuer, issuerMode: d.DefaultIssuerMode}
}

// MintInput describes one grant's worth of tokens.
type MintInput struct {
	Domain  *repository.Domain
	Client  *repository.Client
	Subject string
	Scopes  []string

	// WithRefresh mints an opaque refresh token in a new lineage, or in
	// LineageID when rotating.
	WithRefresh bool
	LineageID   string
	RotatedFrom *string

	// Nonce and AuthTime flow into the ID token when the openid scope is
	// granted. AuthTime zero means "not a fresh user authentication".
	Nonce    string
	AuthTime time.Time
}

// Minted is the result of a grant evaluation.
type Minted struct {
	AccessToken  string
	TokenType    string
	ExpiresIn    int64
	RefreshToken string
	IDToken      string
	Scopes       []string

	// AccessJTI and LineageID are internal bookkeeping, not wire fields.
	AccessJTI string
	LineageID string
}

// Mint issues the token set for an evaluated grant. TTLs resolve per token:
// client override first, then domain policy, then the package default.
func (s *Service) Mint(ctx context.Context, in MintInput) (*Minted, error) {
	mode := in.Domain.IssuerMode
	if mode == "" {
		mode = s.issuerMode
	}
	iss := jwt.ResolveIssuer(s.issuer.Iss, mode, in.Domain.ID, in.Domain.IssuerOverride)
	accessTTL := effectiveTTL(in.Client.AccessTokenTTL, in.Domain.AccessTokenTTL, DefaultAccessTTL)

	out := &Minted{TokenType: "Bearer", Scopes: in.Scopes, LineageID: in.LineageID}

	// Refresh first: the access token's "lin" claim needs the lineage ID.
	if in.WithRefresh {
		raw, lineage, err := s.mintRefresh(ctx, in)
		if err != nil {
			return nil, err
		}
		out.RefreshToken = raw
		out.LineageID = lineage
	}

	std := map[string]any{
		"scope":     scope.Join(in.Scopes),
		"client_id": in.Client.ClientID,
		"dom":       in.Domain.ID,
	}
	if out.LineageID != "" {
		std["lin"] = out.LineageID
	}
	access, err := s.issuer.IssueAccess(iss, in.Subject, in.Client.ClientID, accessTTL, std)
	if err != nil {
		return nil, oauth2.ErrServerError.WithCause(err)
	}
	out.AccessToken = access.Value
	out.AccessJTI = access.JTI
	out.ExpiresIn = int64(time.Until(access.ExpiresAt).Round(time.Second).Seconds())
	metrics.TokensMinted.WithLabelValues("access").Inc()

	if scope.Contains(in.Scopes, "openid") && in.Subject != "" {
		idTTL := effectiveTTL(in.Client.IDTokenTTL, in.Domain.IDTokenTTL, DefaultIDTokenTTL)
		idStd := map[string]any{
			"azp":     in.Client.ClientID,
			"at_hash": atHash(access.Value),
		}
		if in.Nonce != "" {
			idStd["nonce"] = in.Nonce
		}
		if !in.AuthTime.IsZero() {
			idStd["auth_time"] = in.AuthTime.Unix()
		}
		idtok, err := s.issuer.IssueIDToken(iss, in.Subject, in.Client.ClientID, idTTL, idStd)
		if err != nil {
			return nil, oauth2.ErrServerError.WithCause(err)
		}
		out.IDToken = idtok.Value
		metrics.TokensMinted.WithLabelValues("id").Inc()
	}

	return out, nil
}

func (s *Service) mintRefresh(ctx context.Context, in MintInput) (raw, lineage string, err error) {
	raw, err = tokens.GenerateOpaque(32)
	if err != nil {
		return "", "", oauth2.ErrServerError.WithCause(err)
	}
	ttl := effectiveTTL(in.Client.RefreshTokenTTL, in.Domain.RefreshTokenTTL, DefaultRefreshTTL)

	id, err := s.tokens.Create(ctx, repository.CreateRefreshTokenInput{
		LineageID:   in.LineageID,
		DomainID:    in.Domain.ID,
		ClientID:    in.Client.ClientID,
		Subject:     in.Subject,
		Scopes:      in.Scopes,
		TokenHash:   tokens.SHA256Base64URL(raw),
		TTL:         ttl,
		RotatedFrom: in.RotatedFrom,
	})
	if err != nil {
		return "", "", oauth2.ErrServerError.WithCause(err)
	}
	metrics.TokensMinted.WithLabelValues("refresh").Inc()

	lineage = in.LineageID
	if lineage == "" {
		// New lineage: the store roots it at the first token's ID.
		lineage = id
	}
	return raw, lineage, nil
}

// RedeemRefresh validates and rotates a refresh token, returning the stored
// record the caller mints the replacement set from.
//
// Reuse of a superseded token is treated as theft (RFC 6749 §10.4): the
// whole lineage is revoked before returning invalid_grant.
func (s *Service) RedeemRefresh(ctx context.Context, domain *repository.Domain, client *repository.Client, raw string) (*repository.RefreshToken, error) {
	log := logger.From(ctx).With(logger.Component("token"), logger.Op("redeem_refresh"))

	rec, err := s.tokens.GetByHash(ctx, tokens.SHA256Base64URL(raw))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, oauth2.ErrInvalidGrant
		}
		return nil, oauth2.ErrServerError.WithCause(err)
	}
	if rec.ClientID != client.ClientID || rec.DomainID != domain.ID {
		return nil, oauth2.ErrInvalidGrant
	}
	if rec.Rotated {
		log.Warn("superseded refresh token replayed, revoking lineage",
			logger.ClientID(client.ClientID), logger.TokenID(rec.ID))
		s.revokeLineage(ctx, domain, rec.LineageID)
		return nil, oauth2.ErrInvalidGrant
	}
	if !rec.Active(time.Now().UTC()) {
		return nil, oauth2.ErrInvalidGrant
	}

	if domain.RotateRefreshTokens {
		if err := s.tokens.Rotate(ctx, rec.ID); err != nil {
			if errors.Is(err, repository.ErrAlreadyRotated) {
				// Lost a concurrent race on the same token. Same treatment
				// as a replay of a superseded token.
				s.revokeLineage(ctx, domain, rec.LineageID)
				return nil, oauth2.ErrInvalidGrant
			}
			return nil, oauth2.ErrServerError.WithCause(err)
		}
	}
	return rec, nil
}

// Introspection is the RFC 7662 response body.
type Introspection struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Subject   string `json:"sub,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
	Issuer    string `json:"iss,omitempty"`
	JTI       string `json:"jti,omitempty"`
}

// Introspect resolves a token of unknown type. It tries the JWT path first
// (signature, exp, denylists) and falls back to the opaque refresh store.
// It never fails a request over a bad token: any dead token is active:false.
func (s *Service) Introspect(ctx context.Context, token string) *Introspection {
	if claims, err := s.issuer.Parse(token); err == nil {
		jti, _ := claims["jti"].(string)
		if s.denied(ctx, "jti:"+jti) {
			return &Introspection{Active: false}
		}
		if lin, _ := claims["lin"].(string); lin != "" && s.denied(ctx, "lineage:"+lin) {
			return &Introspection{Active: false}
		}
		out := &Introspection{Active: true, TokenType: "Bearer", JTI: jti}
		out.Subject, _ = claims["sub"].(string)
		out.ClientID, _ = claims["client_id"].(string)
		out.Scope, _ = claims["scope"].(string)
		out.Issuer, _ = claims["iss"].(string)
		if exp, ok := claims["exp"].(float64); ok {
			out.ExpiresAt = int64(exp)
		}
		if iat, ok := claims["iat"].(float64); ok {
			out.IssuedAt = int64(iat)
		}
		return out
	}

	rec, err := s.tokens.GetByHash(ctx, tokens.SHA256Base64URL(token))
	if err != nil || !rec.Active(time.Now().UTC()) {
		return &Introspection{Active: false}
	}
	return &Introspection{
		Active:    true,
		TokenType: "refresh_token",
		ClientID:  rec.ClientID,
		Subject:   rec.Subject,
		Scope:     scope.Join(rec.Scopes),
		ExpiresAt: rec.ExpiresAt.Unix(),
		IssuedAt:  rec.IssuedAt.Unix(),
	}
}

// Revoke invalidates a token of unknown type (RFC 7009). Revoking a refresh
// token cascades to its whole lineage, access tokens included. Unknown or
// already-dead tokens succeed silently.
func (s *Service) Revoke(ctx context.Context, domain *repository.Domain, client *repository.Client, token string) error {
	log := logger.From(ctx).With(logger.Component("token"), logger.Op("revoke"))

	if claims, err := s.issuer.Parse(token); err == nil {
		if owner, _ := claims["client_id"].(string); owner != client.ClientID {
			// RFC 7009 §2.1: a client may only revoke its own tokens. Succeed
			// silently rather than leak the token's existence.
			log.Warn("revocation of foreign token ignored", logger.ClientID(client.ClientID))
			return nil
		}
		jti, _ := claims["jti"].(string)
		exp, _ := claims["exp"].(float64)
		ttl := time.Until(time.Unix(int64(exp), 0))
		if jti != "" && ttl > 0 {
			if err := s.denylist.Set(ctx, "jti:"+jti, "1", ttl); err != nil {
				return oauth2.ErrServerError.WithCause(err)
			}
			metrics.TokensRevoked.Inc()
			audit.Log(ctx, audit.EventTokenRevoked, map[string]any{"jti": jti})
		}
		return nil
	}

	rec, err := s.tokens.GetByHash(ctx, tokens.SHA256Base64URL(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil // idempotent
		}
		return oauth2.ErrServerError.WithCause(err)
	}
	if rec.ClientID != client.ClientID {
		// RFC 7009 §2.1: a client may only revoke its own tokens. Succeed
		// silently rather than leak the token's existence.
		log.Warn("revocation of foreign token ignored", logger.ClientID(client.ClientID))
		return nil
	}
	s.revokeLineage(ctx, domain, rec.LineageID)
	return nil
}

func (s *Service) revokeLineage(ctx context.Context, domain *repository.Domain, lineageID string) {
	log := logger.From(ctx).With(logger.Component("token"), logger.Op("revoke_lineage"))

	n, err := s.tokens.RevokeLineage(ctx, lineageID)
	if err != nil {
		log.Error("lineage revocation failed", logger.Err(err))
	}
	// The denylist entry outlives the longest access token the lineage could
	// have minted. Refresh TTL is an upper bound for that.
	ttl := effectiveTTL(0, domain.RefreshTokenTTL, DefaultRefreshTTL)
	if err := s.denylist.Set(ctx, "lineage:"+lineageID, "1", ttl); err != nil {
		log.Error("lineage denylist write failed", logger.Err(err))
	}
	metrics.TokensRevoked.Add(float64(n))
	audit.Log(ctx, audit.EventLineageRevoked, map[string]any{
		"lineage_id": lineageID,
		"revoked":    n,
	})
}

func (s *Service) denied(ctx context.Context, key string) bool {
	_, err := s.denylist.Get(ctx, key)
	return err == nil
}

// effectiveTTL resolves a TTL: client seconds override, domain policy,
// package default.
func effectiveTTL(clientSeconds int, domainTTL, def time.Duration) time.Duration {
	if clientSeconds > 0 {
		return time.Duration(clientSeconds) * time.Second
	}
	if domainTTL > 0 {
		return domainTTL
	}
	return def
}

// atHash computes the OIDC at_hash: base64url of the left half of the
// SHA-256 digest of the access token.
func atHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}
