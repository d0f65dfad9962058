package jwt

import (
	"crypto/ed25519"
	"strings"
	"time"

	"github.com/google/uuid"
	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Issuer firma tokens usando la clave activa del keystore.
type Issuer struct {
	Iss  string // issuer base, ej: https://gw.example.com
	Keys *Keystore
}

func NewIssuer(iss string, ks *Keystore) *Issuer {
	return &Issuer{Iss: iss, Keys: ks}
}

// IssuerMode para dominios.
const (
	IssuerModeGlobal = "global"
	IssuerModePath   = "path" // iss = {base}/d/{domainID}
)

// ResolveIssuer calcula el issuer efectivo de un dominio.
func ResolveIssuer(base, mode, domainID, override string) string {
	if override != "" {
		return override
	}
	if mode == IssuerModePath && domainID != "" {
		return strings.TrimRight(base, "/") + "/d/" + domainID
	}
	return base
}

// SignedToken es el resultado de una emisión.
type SignedToken struct {
	Value     string
	JTI       string
	ExpiresAt time.Time
}

// IssueAccess emite un access token con claims estándar más std (flat).
// aud es el client_id; iss el issuer efectivo del dominio.
func (i *Issuer) IssueAccess(iss, sub, aud string, ttl time.Duration, std map[string]any) (*SignedToken, error) {
	return i.sign(iss, sub, aud, ttl, std)
}

// IssueIDToken emite un ID token OIDC.
func (i *Issuer) IssueIDToken(iss, sub, aud string, ttl time.Duration, std map[string]any) (*SignedToken, error) {
	return i.sign(iss, sub, aud, ttl, std)
}

func (i *Issuer) sign(iss, sub, aud string, ttl time.Duration, std map[string]any) (*SignedToken, error) {
	key, err := i.Keys.Active()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	exp := now.Add(ttl)
	jti := uuid.NewString()

	claims := jwtv5.MapClaims{
		"iss": iss,
		"sub": sub,
		"aud": aud,
		"jti": jti,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
	}
	for k, v := range std {
		claims[k] = v
	}

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = key.KID
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(key.PrivateKey)
	if err != nil {
		return nil, err
	}
	return &SignedToken{Value: signed, JTI: jti, ExpiresAt: exp}, nil
}

// Keyfunc elige la pubkey por 'kid' del header (active/retiring).
func (i *Issuer) Keyfunc() jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid != "" {
			return i.Keys.PublicKeyByKID(kid)
		}
		// Fallback: la activa
		key, err := i.Keys.Active()
		if err != nil {
			return nil, err
		}
		return ed25519.PublicKey(key.PublicKey), nil
	}
}

// Parse valida firma y expiración y retorna los claims.
func (i *Issuer) Parse(token string) (jwtv5.MapClaims, error) {
	parsed, err := jwtv5.Parse(token, i.Keyfunc(), jwtv5.WithValidMethods([]string{"EdDSA"}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, jwtv5.ErrTokenMalformed
	}
	return claims, nil
}
