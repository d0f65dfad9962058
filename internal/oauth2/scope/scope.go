// Package scope implementa el Scope & Policy Validator: acota los scopes
// pedidos a lo que el client y el usuario pueden sostener.
package scope

import (
	"errors"
	"sort"
	"strings"

	"github.com/dropDatabas3/gatejohn/internal/oauth2"
)

// ErrConsentRequired señala que la policy del dominio exige consentimiento
// que aún no cubre el grant. No es un error de protocolo: el flujo de
// autorización lo traduce a un prompt de consent.
var ErrConsentRequired = errors.New("scope: consent required")

// Policy son las decisiones de dominio que afectan la resolución.
type Policy struct {
	// Lenient habilita narrowing silencioso: scopes sobre-pedidos se
	// descartan en vez de fallar. Default false (fail-closed).
	Lenient bool

	// RequireConsent exige que consentGranted cubra el resultado.
	RequireConsent bool
}

// Resolve interseca requested con clientAllowed bajo la policy.
//
//   - requested vacío → default a clientAllowed completo.
//   - scope pedido fuera de clientAllowed → invalid_scope, salvo Lenient.
//   - resultado vacío → invalid_scope.
//   - RequireConsent y consentGranted no cubre el resultado → ErrConsentRequired.
//
// El resultado es siempre un subconjunto de requested ∩ clientAllowed
// (monotonía): nunca aparece un scope que no fue pedido ni permitido.
func Resolve(requested, clientAllowed, consentGranted []string, policy Policy) ([]string, error) {
	if len(requested) == 0 {
		requested = clientAllowed
	}

	allowed := make(map[string]struct{}, len(clientAllowed))
	for _, s := range clientAllowed {
		allowed[s] = struct{}{}
	}

	granted := make([]string, 0, len(requested))
	seen := make(map[string]struct{}, len(requested))
	for _, s := range requested {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		if _, ok := allowed[s]; !ok {
			if policy.Lenient {
				continue
			}
			return nil, oauth2.ErrInvalidScope.WithDescription("scope " + s + " is not allowed for this client")
		}
		granted = append(granted, s)
	}

	if len(granted) == 0 {
		return nil, oauth2.ErrInvalidScope.WithDescription("no grantable scope remains")
	}
	sort.Strings(granted)

	if policy.RequireConsent && !covers(consentGranted, granted) {
		return nil, ErrConsentRequired
	}
	return granted, nil
}

func covers(granted, needed []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		set[s] = struct{}{}
	}
	for _, s := range needed {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}

// Split parsea el parámetro scope (space-delimited, RFC 6749 §3.3).
func Split(raw string) []string {
	return strings.Fields(raw)
}

// Join serializa un scope set para el token response.
func Join(scopes []string) string {
	return strings.Join(scopes, " ")
}

// Contains reporta si el set incluye el scope.
func Contains(scopes []string, s string) bool {
	for _, x := range scopes {
		if x == s {
			return true
		}
	}
	return false
}
