package jwt_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dropDatabas3/gatejohn/internal/jwt"
)

func newIssuer(t *testing.T) (*jwt.Issuer, *jwt.Keystore) {
	t.Helper()
	ks, err := jwt.NewKeystore()
	if err != nil {
		t.Fatalf("keystore: %v", err)
	}
	return jwt.NewIssuer("https://auth.example", ks), ks
}

func TestIssueAndParse(t *testing.T) {
	iss, _ := newIssuer(t)

	tok, err := iss.IssueAccess("https://auth.example", "user-1", "web", time.Minute, map[string]any{
		"scope": "openid",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tok.JTI == "" || tok.Value == "" {
		t.Fatalf("token: %+v", tok)
	}

	claims, err := iss.Parse(tok.Value)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims["sub"] != "user-1" || claims["aud"] != "web" || claims["scope"] != "openid" {
		t.Fatalf("claims: %v", claims)
	}
	if claims["jti"] != tok.JTI {
		t.Fatalf("jti mismatch: %v != %s", claims["jti"], tok.JTI)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	iss, _ := newIssuer(t)
	tok, err := iss.IssueAccess("https://auth.example", "user-1", "web", -time.Minute, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := iss.Parse(tok.Value); err == nil {
		t.Fatal("expired token parsed")
	}
}

func TestRotationGrace(t *testing.T) {
	iss, ks := newIssuer(t)

	old, err := iss.IssueAccess("https://auth.example", "user-1", "web", time.Minute, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := ks.Rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	// El token firmado con la clave retiring sigue validando durante la gracia.
	if _, err := iss.Parse(old.Value); err != nil {
		t.Fatalf("token died on rotation: %v", err)
	}

	fresh, err := iss.IssueAccess("https://auth.example", "user-1", "web", time.Minute, nil)
	if err != nil {
		t.Fatalf("issue after rotate: %v", err)
	}
	if _, err := iss.Parse(fresh.Value); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}

	// Gracia cero: la retiring se retira y sus tokens dejan de validar.
	ks.Retire(0)
	if _, err := iss.Parse(old.Value); err == nil {
		t.Fatal("retired key still validates")
	}
	if _, err := iss.Parse(fresh.Value); err != nil {
		t.Fatalf("active key affected by retire: %v", err)
	}
}

func TestResolveIssuer(t *testing.T) {
	cases := []struct {
		name     string
		mode     string
		domainID string
		override string
		want     string
	}{
		{"global", jwt.IssuerModeGlobal, "dev", "", "https://auth.example"},
		{"path", jwt.IssuerModePath, "dev", "", "https://auth.example/d/dev"},
		{"override wins", jwt.IssuerModePath, "dev", "https://custom.example", "https://custom.example"},
		{"path without domain", jwt.IssuerModePath, "", "", "https://auth.example"},
	}
	for _, c := range cases {
		got := jwt.ResolveIssuer("https://auth.example", c.mode, c.domainID, c.override)
		if got != c.want {
			t.Fatalf("%s: got %q want %q", c.name, got, c.want)
		}
	}
}

func TestBuildJWKS(t *testing.T) {
	_, ks := newIssuer(t)
	if _, err := ks.Rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	var doc struct {
		Keys []struct {
			Kty string `json:"kty"`
			Crv string `json:"crv"`
			Kid string `json:"kid"`
			X   string `json:"x"`
		} `json:"keys"`
	}
	if err := json.Unmarshal(ks.BuildJWKS(), &doc); err != nil {
		t.Fatalf("jwks: %v", err)
	}
	// Active y retiring publican; cada una con su material.
	if len(doc.Keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(doc.Keys))
	}
	for _, k := range doc.Keys {
		if k.Kty != "OKP" || k.Crv != "Ed25519" || k.Kid == "" || k.X == "" {
			t.Fatalf("malformed jwk: %+v", k)
		}
	}
}
