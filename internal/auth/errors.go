package auth

import "errors"

var (
	// ErrInvalidToken indicates the token failed signature or claim checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired indicates the token is past its expiry instant.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// the response never reveals which one failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrWeakPassword is returned when the password is below the minimum length.
	ErrWeakPassword = errors.New("password too short")
	// ErrRoleNotAllowed is returned when registration asks for a staff role.
	ErrRoleNotAllowed = errors.New("role not allowed at registration")
)
