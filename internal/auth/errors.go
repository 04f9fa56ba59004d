package auth

import "errors"

var (
	// ErrInvalidCredentials covers both unknown email and wrong password,
	// deliberately indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
	ErrAccountDisabled    = errors.New("auth: account is disabled")
	ErrAccountLocked      = errors.New("auth: account is locked")

	ErrInvalidRefreshToken = errors.New("auth: invalid refresh token")
	ErrRefreshTokenExpired = errors.New("auth: refresh token expired")

	ErrInvalidResetToken = errors.New("auth: invalid reset token")
	ErrResetTokenExpired = errors.New("auth: reset token has expired")

	ErrInvalidToken = errors.New("auth: invalid token")
	ErrTokenExpired = errors.New("auth: token expired")

	ErrNotFound      = errors.New("auth: not found")
	ErrEmailTaken    = errors.New("auth: email already registered")
	ErrUnknownRole   = errors.New("auth: unknown role")
	ErrInvalidInput  = errors.New("auth: invalid input")
)
