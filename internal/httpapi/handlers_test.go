package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/gatejohn/internal/cache"
	"github.com/dropDatabas3/gatejohn/internal/configsync"
	"github.com/dropDatabas3/gatejohn/internal/domain/repository"
	"github.com/dropDatabas3/gatejohn/internal/httpapi"
	"github.com/dropDatabas3/gatejohn/internal/idp"
	"github.com/dropDatabas3/gatejohn/internal/jwt"
	"github.com/dropDatabas3/gatejohn/internal/oauth2"
	"github.com/dropDatabas3/gatejohn/internal/oauth2/authcode"
	"github.com/dropDatabas3/gatejohn/internal/oauth2/clientauth"
	"github.com/dropDatabas3/gatejohn/internal/oauth2/granter"
	"github.com/dropDatabas3/gatejohn/internal/oauth2/token"
	"github.com/dropDatabas3/gatejohn/internal/rate"
	"github.com/dropDatabas3/gatejohn/internal/security/password"
	"github.com/dropDatabas3/gatejohn/internal/store/memory"
)

const tokenURL = "https://auth.example/oauth/token"

func newTestServer(t *testing.T, limiter rate.Limiter) *httptest.Server {
	t.Helper()
	store := memory.New()

	store.PutDomain(repository.Domain{
		ID: "dev", Name: "Dev", Enabled: true,
		GrantTypes: []string{
			oauth2.GrantClientCredentials,
			oauth2.GrantPassword,
			oauth2.GrantRefreshToken,
		},
		Scopes:              []string{"openid", "api:read"},
		RotateRefreshTokens: true,
		IssuerMode:          "global",
		Revision:            1,
	})
	hash, err := password.Hash(password.Default, "dev-secret")
	require.NoError(t, err)
	store.PutClient(repository.Client{
		ID: "c-web", DomainID: "dev", ClientID: "web",
		AuthMethod: repository.AuthMethodSecretBasic,
		SecretHash: hash,
		GrantTypes: []string{
			oauth2.GrantClientCredentials,
			oauth2.GrantPassword,
			oauth2.GrantRefreshToken,
		},
		Scopes:   []string{"openid", "api:read"},
		Revision: 1,
	})

	mgr := configsync.NewManager(configsync.Config{
		Loader: configsync.Loader{Domains: store.Domains(), Clients: store.Clients()},
	})
	require.NoError(t, mgr.Warm(context.Background()))

	ks, err := jwt.NewKeystore()
	require.NoError(t, err)
	issuer := jwt.NewIssuer("https://auth.example", ks)
	c := cache.NewMemory("test:")
	auth := clientauth.New(c, tokenURL)
	tokens := token.NewService(token.Deps{Tokens: store.Tokens(), Denylist: c, Issuer: issuer})
	local := idp.NewLocalProvider()
	require.NoError(t, local.AddUser("ana", "user-ana", "pw-ana"))
	idps := idp.NewRegistry()
	idps.Register("local", local)

	g := granter.New(granter.Deps{
		Sync:     mgr,
		Auth:     auth,
		Codes:    authcode.NewStore(store.Codes()),
		Tokens:   tokens,
		Consents: store.Consents(),
		IDPs:     idps,
		TokenURL: tokenURL,
	})

	h := &httpapi.Handlers{
		Granter: g,
		Tokens:  tokens,
		Auth:    auth,
		Sync:    mgr,
		Keys:    ks,
		Ready:   func(ctx context.Context) error { return nil },
	}
	srv := httptest.NewServer(httpapi.NewRouter(h, httpapi.RouterConfig{Limiter: limiter}))
	t.Cleanup(srv.Close)
	return srv
}

func postForm(t *testing.T, srv *httptest.Server, path string, form url.Values, basic bool) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basic {
		req.SetBasicAuth("web", "dev-secret")
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp, body
}

func TestTokenEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, body := postForm(t, srv, "/oauth/token", url.Values{
		"grant_type": {"client_credentials"},
		"scope":      {"api:read"},
	}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	require.NotEmpty(t, body["access_token"])
	require.Equal(t, "Bearer", body["token_type"])
	require.NotContains(t, body, "refresh_token")
}

func TestTokenEndpointErrors(t *testing.T) {
	srv := newTestServer(t, nil)

	t.Run("bad secret is 401 with challenge", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/oauth/token",
			strings.NewReader("grant_type=client_credentials"))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth("web", "wrong")
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Equal(t, "invalid_client", body["error"])
	})

	t.Run("grant not enabled for client", func(t *testing.T) {
		resp, body := postForm(t, srv, "/oauth/token", url.Values{
			"grant_type": {"urn:example:nope"},
		}, true)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "unauthorized_client", body["error"])
	})

	t.Run("error body never leaks internals", func(t *testing.T) {
		resp, body := postForm(t, srv, "/oauth/token", url.Values{}, true)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		for k := range body {
			require.Contains(t, []string{"error", "error_description"}, k)
		}
	})
}

func TestIntrospectAndRevoke(t *testing.T) {
	srv := newTestServer(t, nil)

	_, minted := postForm(t, srv, "/oauth/token", url.Values{
		"grant_type": {"password"},
		"username":   {"ana"},
		"password":   {"pw-ana"},
		"scope":      {"openid api:read"},
	}, true)
	access, _ := minted["access_token"].(string)
	refresh, _ := minted["refresh_token"].(string)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	resp, intro := postForm(t, srv, "/oauth/introspect", url.Values{"token": {access}}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, intro["active"])
	require.Equal(t, "user-ana", intro["sub"])

	// Sin autenticación de client, introspección rechazada.
	resp, _ = postForm(t, srv, "/oauth/introspect", url.Values{"token": {access}}, false)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Revocar el refresh apaga el linaje; el access cae con él.
	resp, _ = postForm(t, srv, "/oauth/revoke", url.Values{"token": {refresh}}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, intro = postForm(t, srv, "/oauth/introspect", url.Values{"token": {access}}, true)
	require.Equal(t, false, intro["active"])

	// Revocación repetida sigue siendo 200.
	resp, _ = postForm(t, srv, "/oauth/revoke", url.Values{"token": {refresh}}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestJWKSEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := srv.Client().Get(srv.URL + "/.well-known/jwks.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Cache-Control"), "max-age")

	var doc struct {
		Keys []map[string]string `json:"keys"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	require.NotEmpty(t, doc.Keys)
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := srv.Client().Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestReadyzUnavailable(t *testing.T) {
	store := memory.New()
	mgr := configsync.NewManager(configsync.Config{
		Loader: configsync.Loader{Domains: store.Domains(), Clients: store.Clients()},
	})
	ks, err := jwt.NewKeystore()
	require.NoError(t, err)
	h := &httpapi.Handlers{
		Sync: mgr,
		Keys: ks,
		Ready: func(ctx context.Context) error {
			return errors.New("storage down")
		},
	}
	srv := httptest.NewServer(httpapi.NewRouter(h, httpapi.RouterConfig{}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestTokenRateLimit(t *testing.T) {
	srv := newTestServer(t, rate.NewMemoryLimiter(2, time.Minute))

	form := url.Values{"grant_type": {"client_credentials"}, "scope": {"api:read"}}
	for i := 0; i < 2; i++ {
		resp, body := postForm(t, srv, "/oauth/token", form, true)
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
	}

	resp, body := postForm(t, srv, "/oauth/token", form, true)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))
	require.Equal(t, "slow_down", body["error"])
}

func TestRequestIDPropagation(t *testing.T) {
	srv := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))

	// Sin header entrante el middleware genera uno.
	resp, err = srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
