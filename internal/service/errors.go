package service

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserAlreadyExists  = errors.New("email is already registered")
	ErrUserInactive       = errors.New("account is disabled")
	ErrTokenInvalid       = errors.New("token is invalid or expired")
	ErrForbidden          = errors.New("insufficient permissions")
	ErrLPRDisabled        = errors.New("licence plate recognition is not configured")
	ErrPlateNotFound      = errors.New("no licence plate found in image")
)
