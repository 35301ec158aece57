package auth

import "errors"

var (
	// ErrTokenExpired indicates a well-formed token past its expiry.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid indicates a malformed, forged or wrong-type token.
	ErrTokenInvalid = errors.New("auth: invalid token")
	// ErrUnauthorized indicates missing or failed authentication.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrForbidden indicates an authenticated principal lacking a permission.
	ErrForbidden = errors.New("auth: forbidden")
)
