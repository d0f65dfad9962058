package clientauth_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dropDatabas3/gatejohn/internal/cache"
	"github.com/dropDatabas3/gatejohn/internal/domain/repository"
	"github.com/dropDatabas3/gatejohn/internal/oauth2"
	"github.com/dropDatabas3/gatejohn/internal/oauth2/clientauth"
	"github.com/dropDatabas3/gatejohn/internal/security/password"
)

const tokenURL = "https://auth.example/oauth/token"

func mustHash(t *testing.T, plain string) string {
	t.Helper()
	h, err := password.Hash(password.Default, plain)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return h
}

func expectInvalidClient(t *testing.T, err error) {
	t.Helper()
	if !errors.Is(err, oauth2.ErrInvalidClient) {
		t.Fatalf("expected invalid_client, got %v", err)
	}
}

func TestSecretBasic(t *testing.T) {
	ctx := context.Background()
	a := clientauth.New(cache.NewMemory("test:"), tokenURL)
	client := &repository.Client{
		ClientID:   "web",
		AuthMethod: repository.AuthMethodSecretBasic,
		SecretHash: mustHash(t, "s3cret"),
	}

	if err := a.Authenticate(ctx, client, clientauth.Credentials{
		ClientID: "web", Secret: "s3cret", FromBasic: true,
	}); err != nil {
		t.Fatalf("valid basic rejected: %v", err)
	}

	expectInvalidClient(t, a.Authenticate(ctx, client, clientauth.Credentials{
		ClientID: "web", Secret: "wrong", FromBasic: true,
	}))

	// Secret correcto pero presentado en el form: el método registrado manda.
	expectInvalidClient(t, a.Authenticate(ctx, client, clientauth.Credentials{
		ClientID: "web", Secret: "s3cret", FromBasic: false,
	}))
}

func TestSecretPost(t *testing.T) {
	ctx := context.Background()
	a := clientauth.New(cache.NewMemory("test:"), tokenURL)
	client := &repository.Client{
		ClientID:   "cli",
		AuthMethod: repository.AuthMethodSecretPost,
		SecretHash: mustHash(t, "otro-secreto"),
	}

	if err := a.Authenticate(ctx, client, clientauth.Credentials{
		ClientID: "cli", Secret: "otro-secreto",
	}); err != nil {
		t.Fatalf("valid post rejected: %v", err)
	}
	expectInvalidClient(t, a.Authenticate(ctx, client, clientauth.Credentials{
		ClientID: "cli", Secret: "otro-secreto", FromBasic: true,
	}))
}

func TestPublicClient(t *testing.T) {
	ctx := context.Background()
	a := clientauth.New(cache.NewMemory("test:"), tokenURL)
	client := &repository.Client{ClientID: "spa", AuthMethod: repository.AuthMethodNone}

	if err := a.Authenticate(ctx, client, clientauth.Credentials{ClientID: "spa"}); err != nil {
		t.Fatalf("public client rejected: %v", err)
	}
	// Un client público que presenta secret es un despliegue confundido.
	expectInvalidClient(t, a.Authenticate(ctx, client, clientauth.Credentials{
		ClientID: "spa", Secret: "huh",
	}))
}

func TestPrivateKeyJWT(t *testing.T) {
	ctx := context.Background()
	a := clientauth.New(cache.NewMemory("test:"), tokenURL)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	keyPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	client := &repository.Client{
		ClientID:        "m2m",
		AuthMethod:      repository.AuthMethodPrivateKeyJWT,
		AssertionKeyPEM: keyPEM,
	}

	sign := func(claims jwtv5.RegisteredClaims) string {
		tok := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
		s, err := tok.SignedString(priv)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	fresh := func() jwtv5.RegisteredClaims {
		now := time.Now().UTC()
		return jwtv5.RegisteredClaims{
			Issuer:    "m2m",
			Subject:   "m2m",
			Audience:  jwtv5.ClaimStrings{tokenURL},
			ExpiresAt: jwtv5.NewNumericDate(now.Add(2 * time.Minute)),
			IssuedAt:  jwtv5.NewNumericDate(now),
			ID:        uuid.NewString(),
		}
	}

	t.Run("happy path", func(t *testing.T) {
		err := a.Authenticate(ctx, client, clientauth.Credentials{
			ClientID:      "m2m",
			AssertionType: clientauth.AssertionType,
			Assertion:     sign(fresh()),
		})
		if err != nil {
			t.Fatalf("valid assertion rejected: %v", err)
		}
	})

	t.Run("jti replay", func(t *testing.T) {
		assertion := sign(fresh())
		creds := clientauth.Credentials{
			ClientID:      "m2m",
			AssertionType: clientauth.AssertionType,
			Assertion:     assertion,
		}
		if err := a.Authenticate(ctx, client, creds); err != nil {
			t.Fatalf("first use rejected: %v", err)
		}
		expectInvalidClient(t, a.Authenticate(ctx, client, creds))
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := fresh()
		claims.Audience = jwtv5.ClaimStrings{"https://otro.example/token"}
		expectInvalidClient(t, a.Authenticate(ctx, client, clientauth.Credentials{
			ClientID:      "m2m",
			AssertionType: clientauth.AssertionType,
			Assertion:     sign(claims),
		}))
	})

	t.Run("missing jti", func(t *testing.T) {
		claims := fresh()
		claims.ID = ""
		expectInvalidClient(t, a.Authenticate(ctx, client, clientauth.Credentials{
			ClientID:      "m2m",
			AssertionType: clientauth.AssertionType,
			Assertion:     sign(claims),
		}))
	})

	t.Run("lifetime too long", func(t *testing.T) {
		claims := fresh()
		claims.ExpiresAt = jwtv5.NewNumericDate(time.Now().Add(2 * time.Hour))
		expectInvalidClient(t, a.Authenticate(ctx, client, clientauth.Credentials{
			ClientID:      "m2m",
			AssertionType: clientauth.AssertionType,
			Assertion:     sign(claims),
		}))
	})

	t.Run("wrong assertion type", func(t *testing.T) {
		expectInvalidClient(t, a.Authenticate(ctx, client, clientauth.Credentials{
			ClientID:      "m2m",
			AssertionType: "urn:example:wrong",
			Assertion:     sign(fresh()),
		}))
	})
}

func TestParseKey(t *testing.T) {
	if _, err := clientauth.ParseKey("not pem"); err == nil {
		t.Fatal("garbage accepted")
	}
	if _, err := clientauth.ParseKey("-----BEGIN PUBLIC KEY-----\nAAAA\n-----END PUBLIC KEY-----"); err == nil {
		t.Fatal("truncated key accepted")
	}
}
