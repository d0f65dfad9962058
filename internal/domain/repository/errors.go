package repository

import "errors"

var (
	// ErrNotFound indica que el recurso solicitado no existe.
	ErrNotFound = errors.New("not found")

	// ErrConflict indica un conflicto (ej: duplicado, constraint violation).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indica que los datos de entrada son inválidos.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyConsumed indica que el código ya fue consumido: el
	// conditional-update perdió la carrera contra otra redención.
	ErrAlreadyConsumed = errors.New("already consumed")

	// ErrAlreadyRotated indica que el refresh token ya fue rotado por otra
	// redención concurrente.
	ErrAlreadyRotated = errors.New("already rotated")

	// ErrTokenRevoked indica que el token (o su linaje) fue revocado.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrTokenExpired indica que el token ya expiró.
	ErrTokenExpired = errors.New("token expired")
)

// IsNotFound verifica si el error es ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict verifica si el error es ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
