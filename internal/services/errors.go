package services

import "errors"

// Common service errors
var (
	ErrNotFound          = errors.New("demand note not found")
	ErrValidation        = errors.New("invalid input")
	ErrInvalidState      = errors.New("operation not allowed in current state")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrOverpayment       = errors.New("amount exceeds remaining due")
	ErrConcurrency       = errors.New("demand note is locked by another operation")
	ErrUnauthorized      = errors.New("actor not allowed to perform this transition")
)
