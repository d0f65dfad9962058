package jwt

import (
	"encoding/base64"
	"encoding/json"
)

// JWK es la representación pública de una clave (RFC 7517).
type JWK struct {
	KID string `json:"kid"`
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	X   string `json:"x"`
}

// JWKS es el documento del endpoint /.well-known/jwks.json.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// BuildJWKS serializa las claves verificadoras (active + retiring).
func (ks *Keystore) BuildJWKS() []byte {
	keys := ks.Verifying()
	jwks := JWKS{Keys: make([]JWK, 0, len(keys))}
	for _, k := range keys {
		jwks.Keys = append(jwks.Keys, JWK{
			KID: k.KID,
			Kty: "OKP",
			Crv: "Ed25519",
			Alg: "EdDSA",
			Use: "sig",
			X:   base64.RawURLEncoding.EncodeToString(k.PublicKey),
		})
	}
	b, _ := json.Marshal(jwks)
	return b
}
