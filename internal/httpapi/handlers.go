// Package httpapi exposes the gateway's OAuth2 surface: token, introspect,
// revoke, JWKS, health and metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dropDatabas3/gatejohn/internal/configsync"
	"github.com/dropDatabas3/gatejohn/internal/domain/repository"
	"github.com/dropDatabas3/gatejohn/internal/jwt"
	"github.com/dropDatabas3/gatejohn/internal/oauth2"
	"github.com/dropDatabas3/gatejohn/internal/oauth2/clientauth"
	"github.com/dropDatabas3/gatejohn/internal/oauth2/granter"
	"github.com/dropDatabas3/gatejohn/internal/oauth2/token"
	"github.com/dropDatabas3/gatejohn/internal/observability/logger"
)

// Handlers holds the endpoint dependencies.
type Handlers struct {
	Granter *granter.Dispatcher
	Tokens  *token.Service
	Auth    *clientauth.Authenticator
	Sync    *configsync.Manager
	Keys    *jwt.Keystore

	// Ready reports backend health for /readyz (storage ping, cache ping).
	Ready func(ctx context.Context) error
}

// Token handles POST /oauth/token.
func (h *Handlers) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, oauth2.ErrInvalidRequest.WithDescription("malformed form body"))
		return
	}

	req := &granter.TokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		RefreshToken: r.PostFormValue("refresh_token"),
		Username:     r.PostFormValue("username"),
		Password:     r.PostFormValue("password"),
		Assertion:    r.PostFormValue("assertion"),
		Scope:        r.PostFormValue("scope"),
		Credentials:  extractCredentials(r),
	}

	resp, err := h.Granter.Grant(r.Context(), req)
	if err != nil {
		writeOAuthError(w, oauth2.AsError(err))
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, resp)
}

// Introspect handles POST /oauth/introspect (RFC 7662). The caller must be
// an authenticated client; a dead or foreign token is just active:false.
func (h *Handlers) Introspect(w http.ResponseWriter, r *http.Request) {
	if _, _, err := h.authenticateCaller(r); err != nil {
		writeOAuthError(w, oauth2.AsError(err))
		return
	}
	tok := r.PostFormValue("token")
	if tok == "" {
		writeOAuthError(w, oauth2.ErrInvalidRequest.WithDescription("token is required"))
		return
	}
	writeJSON(w, http.StatusOK, h.Tokens.Introspect(r.Context(), tok))
}

// Revoke handles POST /oauth/revoke (RFC 7009). Idempotent: unknown tokens
// return 200.
func (h *Handlers) Revoke(w http.ResponseWriter, r *http.Request) {
	domain, client, err := h.authenticateCaller(r)
	if err != nil {
		writeOAuthError(w, oauth2.AsError(err))
		return
	}
	tok := r.PostFormValue("token")
	if tok == "" {
		writeOAuthError(w, oauth2.ErrInvalidRequest.WithDescription("token is required"))
		return
	}
	if err := h.Tokens.Revoke(r.Context(), domain, client, tok); err != nil {
		writeOAuthError(w, oauth2.AsError(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// JWKS handles GET /.well-known/jwks.json.
func (h *Handlers) JWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(h.Keys.BuildJWKS())
}

// Healthz is liveness: the process is up.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz is readiness: backends answer.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil {
		if err := h.Ready(r.Context()); err != nil {
			logger.From(r.Context()).Warn("readiness check failed", logger.Err(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// authenticateCaller resolves and authenticates the client behind an
// introspection/revocation call.
func (h *Handlers) authenticateCaller(r *http.Request) (*repository.Domain, *repository.Client, error) {
	if err := r.ParseForm(); err != nil {
		return nil, nil, oauth2.ErrInvalidRequest.WithDescription("malformed form body")
	}
	creds := extractCredentials(r)
	if creds.ClientID == "" {
		return nil, nil, oauth2.ErrInvalidClient
	}
	client, err := h.Sync.Client(r.Context(), creds.ClientID)
	if err != nil {
		if errors.Is(err, configsync.ErrRemoved) || errors.Is(err, configsync.ErrNotFound) {
			return nil, nil, oauth2.ErrInvalidClient
		}
		return nil, nil, oauth2.ErrServerError.WithCause(err)
	}
	domain, err := h.Sync.Domain(r.Context(), client.DomainID)
	if err != nil {
		if errors.Is(err, configsync.ErrRemoved) || errors.Is(err, configsync.ErrNotFound) {
			return nil, nil, oauth2.ErrAccessDenied
		}
		return nil, nil, oauth2.ErrServerError.WithCause(err)
	}
	if !domain.Enabled {
		return nil, nil, oauth2.ErrAccessDenied
	}
	if err := h.Auth.Authenticate(r.Context(), client, creds); err != nil {
		return nil, nil, err
	}
	return domain, client, nil
}

// extractCredentials pulls client credentials from the Basic header or the
// form body, whichever the client used.
func extractCredentials(r *http.Request) clientauth.Credentials {
	if id, secret, ok := r.BasicAuth(); ok {
		return clientauth.Credentials{ClientID: id, Secret: secret, FromBasic: true}
	}
	return clientauth.Credentials{
		ClientID:      r.PostFormValue("client_id"),
		Secret:        r.PostFormValue("client_secret"),
		AssertionType: r.PostFormValue("client_assertion_type"),
		Assertion:     r.PostFormValue("client_assertion"),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOAuthError(w http.ResponseWriter, oerr *oauth2.Error) {
	if oerr.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth2", charset="UTF-8"`)
	}
	writeJSON(w, oerr.Status, oerr)
}
