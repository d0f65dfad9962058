// Package granter evaluates token requests: it resolves the domain and
// client from the sync cache, authenticates the client, dispatches to the
// grant strategy and mints the token set.
//
// Strategies are registered per grant type; extension grants plug in via
// Register without touching the dispatcher.
package granter

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/gatejohn/internal/audit"
	"github.com/dropDatabas3/gatejohn/internal/configsync"
	"github.com/dropDatabas3/gatejohn/internal/domain/repository"
	"github.com/dropDatabas3/gatejohn/internal/idp"
	"github.com/dropDatabas3/gatejohn/internal/metrics"
	"github.com/dropDatabas3/gatejohn/internal/oauth2"
	"github.com/dropDatabas3/gatejohn/internal/oauth2/authcode"
	"github.com/dropDatabas3/gatejohn/internal/oauth2/clientauth"
	"github.com/dropDatabas3/gatejohn/internal/oauth2/scope"
	"github.com/dropDatabas3/gatejohn/internal/oauth2/token"
	"github.com/dropDatabas3/gatejohn/internal/observability/logger"
)

// TokenRequest is a decoded token endpoint request.
type TokenRequest struct {
	GrantType   string
	Credentials clientauth.Credentials

	// authorization_code
	Code         string
	RedirectURI  string
	CodeVerifier string

	// refresh_token
	RefreshToken string

	// password
	Username string
	Password string

	// jwt-bearer and extension grants
	Assertion string

	Scope string
}

// Exchange carries the resolved request through a strategy.
type Exchange struct {
	Domain  *repository.Domain
	Client  *repository.Client
	Request *TokenRequest
}

// Strategy evaluates one grant type.
type Strategy interface {
	Grant(ctx context.Context, ex *Exchange) (*token.Minted, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ctx context.Context, ex *Exchange) (*token.Minted, error)

func (f StrategyFunc) Grant(ctx context.Context, ex *Exchange) (*token.Minted, error) {
	return f(ctx, ex)
}

// Deps are the dispatcher's collaborators.
type Deps struct {
	Sync     *configsync.Manager
	Auth     *clientauth.Authenticator
	Codes    *authcode.Store
	Tokens   *token.Service
	Consents repository.ConsentRepository
	IDPs     *idp.Registry

	// TokenURL is the token endpoint URL, the required audience of
	// jwt-bearer assertions.
	TokenURL string
}

// Dispatcher routes token requests to grant strategies.
type Dispatcher struct {
	sync     *configsync.Manager
	auth     *clientauth.Authenticator
	codes    *authcode.Store
	tokens   *token.Service
	consents repository.ConsentRepository
	idps     *idp.Registry
	tokenURL string

	strategies map[string]Strategy
}

// New builds a Dispatcher with the standard grant types registered.
func New(d Deps) *Dispatcher {
	g := &Dispatcher{
		sync:       d.Sync,
		auth:       d.Auth,
		codes:      d.Codes,
		tokens:     d.Tokens,
		consents:   d.Consents,
		idps:       d.IDPs,
		tokenURL:   d.TokenURL,
		strategies: make(map[string]Strategy),
	}
	g.Register(oauth2.GrantAuthorizationCode, StrategyFunc(g.authorizationCode))
	g.Register(oauth2.GrantRefreshToken, StrategyFunc(g.refreshToken))
	g.Register(oauth2.GrantClientCredentials, StrategyFunc(g.clientCredentials))
	g.Register(oauth2.GrantPassword, StrategyFunc(g.passwordGrant))
	g.Register(oauth2.GrantJWTBearer, StrategyFunc(g.jwtBearer))
	return g
}

// Register installs a strategy for a grant type. Registering over an
// existing name replaces it. Not safe for concurrent use with Grant;
// register everything during wiring.
func (g *Dispatcher) Register(grantType string, s Strategy) {
	g.strategies[grantType] = s
}

// Grant evaluates a token request end to end. Every failure is an
// *oauth2.Error; unexpected faults collapse into server_error here and
// nowhere else.
func (g *Dispatcher) Grant(ctx context.Context, req *TokenRequest) (*oauth2.TokenResponse, error) {
	start := time.Now()
	resp, err := g.grant(ctx, req)

	gt := req.GrantType
	if gt == "" {
		gt = "none"
	}
	metrics.GrantDuration.WithLabelValues(gt).Observe(time.Since(start).Seconds())
	if err != nil {
		oerr := oauth2.AsError(err)
		metrics.GrantsTotal.WithLabelValues(gt, oerr.Code).Inc()
		audit.Log(ctx, audit.EventGrantDenied, map[string]any{
			"grant_type": gt,
			"client_id":  req.Credentials.ClientID,
			"error":      oerr.Code,
		})
		return nil, oerr
	}
	metrics.GrantsTotal.WithLabelValues(gt, "ok").Inc()
	audit.Log(ctx, audit.EventGrantIssued, map[string]any{
		"grant_type": gt,
		"client_id":  req.Credentials.ClientID,
		"scope":      resp.Scope,
	})
	return resp, nil
}

func (g *Dispatcher) grant(ctx context.Context, req *TokenRequest) (*oauth2.TokenResponse, error) {
	log := logger.From(ctx).With(logger.Component("granter"), logger.GrantType(req.GrantType))

	if req.GrantType == "" {
		return nil, oauth2.ErrInvalidRequest.WithDescription("grant_type is required")
	}
	if req.Credentials.ClientID == "" {
		return nil, oauth2.ErrInvalidClient
	}

	client, err := g.sync.Client(ctx, req.Credentials.ClientID)
	if err != nil {
		switch {
		case errors.Is(err, configsync.ErrRemoved), errors.Is(err, configsync.ErrNotFound):
			return nil, oauth2.ErrInvalidClient
		default:
			return nil, oauth2.ErrServerError.WithCause(err)
		}
	}

	domain, err := g.sync.Domain(ctx, client.DomainID)
	if err != nil {
		switch {
		case errors.Is(err, configsync.ErrRemoved), errors.Is(err, configsync.ErrNotFound):
			// The client survived its domain's deletion in cache. Fail closed.
			log.Warn("client resolved but domain is gone", logger.ClientID(client.ClientID))
			return nil, oauth2.ErrAccessDenied
		default:
			return nil, oauth2.ErrServerError.WithCause(err)
		}
	}
	if !domain.Enabled {
		return nil, oauth2.ErrAccessDenied
	}

	// The grant must be enabled on both sides: domain policy and client
	// registration.
	if !domain.GrantTypeEnabled(req.GrantType) || !client.GrantTypeAllowed(req.GrantType) {
		return nil, oauth2.ErrUnauthorizedClient
	}

	strategy, ok := g.strategies[req.GrantType]
	if !ok {
		return nil, oauth2.ErrUnsupportedGrantType
	}

	if err := g.auth.Authenticate(ctx, client, req.Credentials); err != nil {
		return nil, err
	}

	minted, err := strategy.Grant(ctx, &Exchange{Domain: domain, Client: client, Request: req})
	if err != nil {
		return nil, err
	}

	log.Info("grant evaluated",
		logger.DomainID(domain.ID),
		logger.ClientID(client.ClientID),
		logger.String("scope", scope.Join(minted.Scopes)),
	)
	return &oauth2.TokenResponse{
		AccessToken:  minted.AccessToken,
		TokenType:    minted.TokenType,
		ExpiresIn:    minted.ExpiresIn,
		RefreshToken: minted.RefreshToken,
		IDToken:      minted.IDToken,
		Scope:        scope.Join(minted.Scopes),
	}, nil
}

// allowedScopes is the client's grantable set: its registered scopes
// clipped to the domain's. Re-evaluated on every grant so a domain-level
// scope removal takes effect without touching clients.
func allowedScopes(domain *repository.Domain, client *repository.Client) []string {
	inDomain := make(map[string]struct{}, len(domain.Scopes))
	for _, s := range domain.Scopes {
		inDomain[s] = struct{}{}
	}
	out := make([]string, 0, len(client.Scopes))
	for _, s := range client.Scopes {
		if _, ok := inDomain[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// wantRefresh reports whether the grant should mint a refresh token.
func wantRefresh(domain *repository.Domain, client *repository.Client) bool {
	return domain.GrantTypeEnabled(oauth2.GrantRefreshToken) &&
		client.GrantTypeAllowed(oauth2.GrantRefreshToken)
}
