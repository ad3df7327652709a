package models

import "errors"

var (
	ErrNotFound                 = errors.New("not found")
	ErrAlreadyExists            = errors.New("already exists")
	ErrInvalidArgument          = errors.New("invalid argument")
	ErrInvalidToken             = errors.New("invalid verification token")
	ErrTokenExpired             = errors.New("verification token has expired")
	ErrActivationNotPending     = errors.New("activation is not pending")
	ErrActivationAlreadyPending = errors.New("an activation is already pending for this user")
	ErrAlreadyResponded         = errors.New("guardian response already recorded")
	ErrShieldDisabled           = errors.New("family shield is not enabled")
	ErrPermissionDenied         = errors.New("permission denied")
)
