// Package oauth2 define el vocabulario de protocolo compartido por el motor:
// grant types, taxonomía de errores RFC 6749 §5.2 y el token response.
package oauth2

// Grant types soportados por el dispatcher. Los extension grants se registran
// por nombre (URI absoluta, RFC 8693-style) sin tocar este catálogo.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantClientCredentials = "client_credentials"
	GrantPassword          = "password"
	GrantJWTBearer         = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

// TokenResponse es la respuesta estándar del token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}
