// Package pkce implementa la verificación challenge/verifier de RFC 7636.
package pkce

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

const (
	MethodPlain = "plain"
	MethodS256  = "S256"
)

// ValidMethod reporta si el challenge method es soportado.
func ValidMethod(method string) bool {
	return method == MethodPlain || method == MethodS256
}

// Challenge calcula el challenge S256 de un verifier (para tests y clients).
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Verify comprueba verifier contra el challenge guardado bajo el método guardado.
// La comparación es en tiempo constante.
func Verify(challenge, method, verifier string) bool {
	if challenge == "" || verifier == "" {
		return false
	}
	var derived string
	switch method {
	case MethodS256:
		derived = Challenge(verifier)
	case MethodPlain:
		derived = verifier
	default:
		return false
	}
	return subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) == 1
}
