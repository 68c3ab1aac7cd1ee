package common

import "errors"

var (

	// repository specific errors
	ErrorNotFound = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// service specific errors
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrInvalidInput   = errors.New("invalid input")

	// signature request lifecycle errors
	ErrExpired         = errors.New("signature request expired")
	ErrAlreadyResolved = errors.New("signature request already resolved")
	ErrInvalidAnchor   = errors.New("invalid anchor")

	// auth errors
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
