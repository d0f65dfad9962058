// Package clientauth authenticates OAuth2 clients at the token endpoint.
//
// Supported methods: client_secret_basic, client_secret_post, none (public
// clients, PKCE enforced downstream) and private_key_jwt (RFC 7523 client
// assertions with single-use jti).
package clientauth

import (
	"context"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/gatejohn/internal/cache"
	"github.com/dropDatabas3/gatejohn/internal/domain/repository"
	"github.com/dropDatabas3/gatejohn/internal/oauth2"
	"github.com/dropDatabas3/gatejohn/internal/observability/logger"
	"github.com/dropDatabas3/gatejohn/internal/security/password"
)

// AssertionType is the only client_assertion_type value accepted (RFC 7523).
const AssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// maxAssertionLifetime caps how far in the future an assertion's exp may be.
// Anything beyond this is treated as a misconfigured (or replayed-forever)
// assertion and rejected.
const maxAssertionLifetime = 10 * time.Minute

// Credentials carries the client credentials extracted from the request.
// Exactly one presentation is expected: Basic header, form secret, or a
// client assertion. The extractor (transport layer) fills what it found.
type Credentials struct {
	ClientID string

	// Secret and FromBasic describe secret-based presentations. FromBasic
	// distinguishes client_secret_basic from client_secret_post so the
	// registered method can be enforced strictly.
	Secret    string
	FromBasic bool

	AssertionType string
	Assertion     string
}

// Authenticator validates client credentials against the registered
// auth method. It never reveals which check failed: every failure maps
// to invalid_client.
type Authenticator struct {
	replay   cache.Client
	tokenURL string
}

// New builds an Authenticator. tokenURL is the token endpoint URL clients
// must use as the assertion audience; replay backs the single-use jti cache.
func New(replay cache.Client, tokenURL string) *Authenticator {
	return &Authenticator{replay: replay, tokenURL: tokenURL}
}

// Authenticate checks creds against the client's registered auth method.
func (a *Authenticator) Authenticate(ctx context.Context, client *repository.Client, creds Credentials) error {
	log := logger.From(ctx).With(logger.Component("clientauth"), logger.ClientID(client.ClientID))

	switch client.AuthMethod {
	case repository.AuthMethodSecretBasic:
		if !creds.FromBasic || creds.Secret == "" {
			return oauth2.ErrInvalidClient
		}
		if !password.Verify(creds.Secret, client.SecretHash) {
			log.Warn("client secret mismatch")
			return oauth2.ErrInvalidClient
		}
		return nil

	case repository.AuthMethodSecretPost:
		if creds.FromBasic || creds.Secret == "" {
			return oauth2.ErrInvalidClient
		}
		if !password.Verify(creds.Secret, client.SecretHash) {
			log.Warn("client secret mismatch")
			return oauth2.ErrInvalidClient
		}
		return nil

	case repository.AuthMethodNone:
		// Public client: no credential to check. A presented secret is a
		// protocol violation and likely a confused deployment.
		if creds.Secret != "" || creds.Assertion != "" {
			return oauth2.ErrInvalidClient
		}
		return nil

	case repository.AuthMethodPrivateKeyJWT:
		if creds.AssertionType != AssertionType || creds.Assertion == "" {
			return oauth2.ErrInvalidClient
		}
		if err := a.verifyAssertion(ctx, client, creds.Assertion); err != nil {
			log.Warn("client assertion rejected", logger.Err(err))
			return oauth2.ErrInvalidClient
		}
		return nil

	default:
		return oauth2.ErrInvalidClient
	}
}

func (a *Authenticator) verifyAssertion(ctx context.Context, client *repository.Client, assertion string) error {
	key, err := ParseKey(client.AssertionKeyPEM)
	if err != nil {
		return fmt.Errorf("registered assertion key: %w", err)
	}

	claims := jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(assertion, &claims,
		func(t *jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{"EdDSA", "RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithAudience(a.tokenURL),
		jwt.WithIssuer(client.ClientID),
		jwt.WithSubject(client.ClientID),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return err
	}
	if !tok.Valid {
		return errors.New("invalid assertion")
	}
	if claims.ID == "" {
		return errors.New("assertion missing jti")
	}

	now := time.Now().UTC()
	exp := claims.ExpiresAt.Time
	if exp.After(now.Add(maxAssertionLifetime)) {
		return errors.New("assertion lifetime too long")
	}

	// Single-use jti: the first caller wins the SetNX, a replay loses.
	// The key lives until the assertion itself would expire, after which
	// the exp check takes over.
	key2 := "jti:" + client.ClientID + ":" + claims.ID
	ok, err := a.replay.SetNX(ctx, key2, "1", time.Until(exp)+time.Minute)
	if err != nil {
		return fmt.Errorf("jti replay cache: %w", err)
	}
	if !ok {
		return errors.New("assertion jti replayed")
	}
	return nil
}

// ParseKey decodes a PEM-encoded public key (PKIX). Ed25519 and RSA are
// the accepted key types. Shared with the jwt-bearer grant, which verifies
// user assertions against the same registered key.
func ParseKey(pemStr string) (any, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("no PEM block")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	switch pub.(type) {
	case ed25519.PublicKey, *rsa.PublicKey:
		return pub, nil
	default:
		return nil, fmt.Errorf("unsupported key type %T", pub)
	}
}
