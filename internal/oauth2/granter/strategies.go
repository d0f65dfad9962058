package granter

import (
	"context"
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/gatejohn/internal/domain/repository"
	"github.com/dropDatabas3/gatejohn/internal/idp"
	"github.com/dropDatabas3/gatejohn/internal/oauth2"
	"github.com/dropDatabas3/gatejohn/internal/oauth2/authcode"
	"github.com/dropDatabas3/gatejohn/internal/oauth2/clientauth"
	"github.com/dropDatabas3/gatejohn/internal/oauth2/scope"
	"github.com/dropDatabas3/gatejohn/internal/oauth2/token"
	"github.com/dropDatabas3/gatejohn/internal/observability/logger"
)

// authorizationCode redeems a one-shot code. The code's scopes were
// resolved at authorize time but are re-clipped against the current
// domain/client registration: a scope revoked since then fails closed.
func (g *Dispatcher) authorizationCode(ctx context.Context, ex *Exchange) (*token.Minted, error) {
	req := ex.Request
	if req.Code == "" || req.RedirectURI == "" {
		return nil, oauth2.ErrInvalidRequest.WithDescription("code and redirect_uri are required")
	}
	if ex.Client.Public() && req.CodeVerifier == "" {
		return nil, oauth2.ErrInvalidRequest.WithDescription("code_verifier is required for public clients")
	}

	rec, err := g.codes.Redeem(ctx, authcode.RedeemInput{
		Code:         req.Code,
		ClientID:     ex.Client.ClientID,
		RedirectURI:  req.RedirectURI,
		CodeVerifier: req.CodeVerifier,
	})
	if err != nil {
		return nil, err
	}

	scopes, err := scope.Resolve(rec.Scopes, allowedScopes(ex.Domain, ex.Client), nil,
		scope.Policy{Lenient: ex.Domain.LenientScopes})
	if err != nil {
		return nil, err
	}

	return g.tokens.Mint(ctx, token.MintInput{
		Domain:      ex.Domain,
		Client:      ex.Client,
		Subject:     rec.Subject,
		Scopes:      scopes,
		WithRefresh: wantRefresh(ex.Domain, ex.Client),
		Nonce:       rec.Nonce,
		AuthTime:    rec.IssuedAt,
	})
}

// refreshToken redeems and (when the domain rotates) supersedes a refresh
// token. Requested scopes may only narrow the original grant.
func (g *Dispatcher) refreshToken(ctx context.Context, ex *Exchange) (*token.Minted, error) {
	req := ex.Request
	if req.RefreshToken == "" {
		return nil, oauth2.ErrInvalidRequest.WithDescription("refresh_token is required")
	}

	rec, err := g.tokens.RedeemRefresh(ctx, ex.Domain, ex.Client, req.RefreshToken)
	if err != nil {
		return nil, err
	}

	scopes := rec.Scopes
	if requested := scope.Split(req.Scope); len(requested) > 0 {
		scopes, err = scope.Resolve(requested, rec.Scopes, nil,
			scope.Policy{Lenient: ex.Domain.LenientScopes})
		if err != nil {
			return nil, err
		}
	}

	in := token.MintInput{
		Domain:    ex.Domain,
		Client:    ex.Client,
		Subject:   rec.Subject,
		Scopes:    scopes,
		LineageID: rec.LineageID,
	}
	if ex.Domain.RotateRefreshTokens {
		in.WithRefresh = true
		in.RotatedFrom = &rec.ID
	}

	minted, err := g.tokens.Mint(ctx, in)
	if err != nil {
		return nil, err
	}
	if !ex.Domain.RotateRefreshTokens {
		// No rotation: the presented token stays valid and is echoed back.
		minted.RefreshToken = req.RefreshToken
	}
	return minted, nil
}

// clientCredentials mints a service token for the client itself. No user,
// no refresh token, no ID token (RFC 6749 §4.4.3, OIDC core §2).
func (g *Dispatcher) clientCredentials(ctx context.Context, ex *Exchange) (*token.Minted, error) {
	allowed := allowedScopes(ex.Domain, ex.Client)
	scopes, err := scope.Resolve(scope.Split(ex.Request.Scope), withoutOpenID(allowed), nil,
		scope.Policy{Lenient: ex.Domain.LenientScopes})
	if err != nil {
		return nil, err
	}

	return g.tokens.Mint(ctx, token.MintInput{
		Domain:  ex.Domain,
		Client:  ex.Client,
		Subject: ex.Client.ClientID,
		Scopes:  scopes,
	})
}

// passwordGrant authenticates the resource owner against the client's
// identity providers. Consent policy applies: without a stored consent
// covering the grant, a RequireConsent domain denies (ROPC has no prompt).
func (g *Dispatcher) passwordGrant(ctx context.Context, ex *Exchange) (*token.Minted, error) {
	req := ex.Request
	if req.Username == "" || req.Password == "" {
		return nil, oauth2.ErrInvalidRequest.WithDescription("username and password are required")
	}

	principal, err := g.authenticateUser(ctx, ex.Client, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	consent := g.consentScopes(ctx, ex.Domain.ID, principal.Subject, ex.Client.ClientID)
	scopes, err := scope.Resolve(scope.Split(req.Scope), allowedScopes(ex.Domain, ex.Client), consent,
		scope.Policy{Lenient: ex.Domain.LenientScopes, RequireConsent: ex.Domain.RequireConsent})
	if err != nil {
		if errors.Is(err, scope.ErrConsentRequired) {
			return nil, oauth2.ErrAccessDenied.WithDescription("consent required")
		}
		return nil, err
	}

	return g.tokens.Mint(ctx, token.MintInput{
		Domain:      ex.Domain,
		Client:      ex.Client,
		Subject:     principal.Subject,
		Scopes:      scopes,
		WithRefresh: wantRefresh(ex.Domain, ex.Client),
		AuthTime:    time.Now().UTC(),
	})
}

// jwtBearer exchanges a signed user assertion for tokens (RFC 7523 §2.1).
// The assertion is verified against the client's registered key; its sub
// becomes the token subject.
func (g *Dispatcher) jwtBearer(ctx context.Context, ex *Exchange) (*token.Minted, error) {
	req := ex.Request
	if req.Assertion == "" {
		return nil, oauth2.ErrInvalidRequest.WithDescription("assertion is required")
	}
	if ex.Client.AssertionKeyPEM == "" {
		return nil, oauth2.ErrUnauthorizedClient.WithDescription("client has no registered assertion key")
	}

	key, err := clientauth.ParseKey(ex.Client.AssertionKeyPEM)
	if err != nil {
		return nil, oauth2.ErrServerError.WithCause(err)
	}
	claims := jwtv5.RegisteredClaims{}
	_, err = jwtv5.ParseWithClaims(req.Assertion, &claims,
		func(t *jwtv5.Token) (any, error) { return key, nil },
		jwtv5.WithValidMethods([]string{"EdDSA", "RS256"}),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithAudience(g.tokenURL),
		jwtv5.WithLeeway(30*time.Second),
	)
	if err != nil {
		logger.From(ctx).Warn("jwt-bearer assertion rejected",
			logger.Component("granter"), logger.ClientID(ex.Client.ClientID), logger.Err(err))
		return nil, oauth2.ErrInvalidGrant
	}
	if claims.Subject == "" {
		return nil, oauth2.ErrInvalidGrant.WithDescription("assertion missing sub")
	}

	scopes, err := scope.Resolve(scope.Split(req.Scope), allowedScopes(ex.Domain, ex.Client), nil,
		scope.Policy{Lenient: ex.Domain.LenientScopes})
	if err != nil {
		return nil, err
	}

	return g.tokens.Mint(ctx, token.MintInput{
		Domain:  ex.Domain,
		Client:  ex.Client,
		Subject: claims.Subject,
		Scopes:  scopes,
	})
}

// authenticateUser walks the client's providers in order; the first one to
// accept the credentials wins. No provider list means the "local" provider.
func (g *Dispatcher) authenticateUser(ctx context.Context, client *repository.Client, username, credential string) (*idp.Principal, error) {
	providers := client.Providers
	if len(providers) == 0 {
		providers = []string{"local"}
	}
	for _, name := range providers {
		p := g.idps.Get(name)
		if p == nil {
			continue
		}
		principal, err := p.Authenticate(ctx, username, credential)
		if err == nil {
			return principal, nil
		}
		if !errors.Is(err, idp.ErrAuthenticationFailed) {
			return nil, oauth2.ErrServerError.WithCause(err)
		}
	}
	return nil, oauth2.ErrInvalidGrant.WithDescription("resource owner authentication failed")
}

func (g *Dispatcher) consentScopes(ctx context.Context, domainID, subject, clientID string) []string {
	c, err := g.consents.Get(ctx, domainID, subject, clientID)
	if err != nil {
		return nil
	}
	if c.RevokedAt != nil {
		return nil
	}
	return c.Scopes
}

func withoutOpenID(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s != "openid" {
			out = append(out, s)
		}
	}
	return out
}
