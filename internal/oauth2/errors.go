package oauth2

import (
	"errors"
	"fmt"
	"net/http"
)

// Error es el error de protocolo OAuth2 (RFC 6749 §5.2).
// Code y Description son lo único que cruza el boundary; Err conserva la
// causa interna para logs y nunca se serializa.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Status      int    `json:"-"`
	Err         error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Description, e.Err)
	}
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

// Is permite errors.Is contra los errores predefinidos comparando por Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithDescription retorna una copia con descripción propia.
// No muta el error base: los predefinidos son compartidos.
func (e *Error) WithDescription(desc string) *Error {
	out := *e
	out.Description = desc
	return &out
}

// WithCause retorna una copia conservando la causa interna.
func (e *Error) WithCause(err error) *Error {
	out := *e
	out.Err = err
	return &out
}

// Errores predefinidos del protocolo, con su status HTTP fijo.
var (
	ErrInvalidRequest = &Error{
		Code:        "invalid_request",
		Description: "the request is missing a required parameter or is malformed",
		Status:      http.StatusBadRequest,
	}
	ErrInvalidClient = &Error{
		Code:        "invalid_client",
		Description: "client authentication failed",
		Status:      http.StatusUnauthorized,
	}
	ErrInvalidGrant = &Error{
		Code:        "invalid_grant",
		Description: "the provided grant is invalid, expired, consumed or mismatched",
		Status:      http.StatusBadRequest,
	}
	ErrUnauthorizedClient = &Error{
		Code:        "unauthorized_client",
		Description: "the client is not authorized to use this grant type",
		Status:      http.StatusBadRequest,
	}
	ErrUnsupportedGrantType = &Error{
		Code:        "unsupported_grant_type",
		Description: "the grant type is not supported by this server",
		Status:      http.StatusBadRequest,
	}
	ErrInvalidScope = &Error{
		Code:        "invalid_scope",
		Description: "the requested scope exceeds what the client may be granted",
		Status:      http.StatusBadRequest,
	}
	ErrAccessDenied = &Error{
		Code:        "access_denied",
		Description: "the request was denied",
		Status:      http.StatusForbidden,
	}
	ErrServerError = &Error{
		Code:        "server_error",
		Description: "an unexpected condition prevented the request from being fulfilled",
		Status:      http.StatusInternalServerError,
	}
)

// AsError normaliza cualquier error a *Error. Un fault no tipado se reporta
// como server_error conservando la causa: nada interno se filtra al cliente.
func AsError(err error) *Error {
	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}
	return ErrServerError.WithCause(err)
}
