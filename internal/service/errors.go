package service

import "errors"

// Sentinel errors services return so handlers can map them onto HTTP
// status codes without inspecting message text.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrInvalidState = errors.New("operation not allowed in current state")
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotCompleted means verification ran but the gateway has not
	// confirmed the payment yet.
	ErrNotCompleted = errors.New("payment not completed")
	// ErrGateway wraps upstream payment provider failures.
	ErrGateway = errors.New("payment gateway error")
)
