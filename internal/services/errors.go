package services

import "errors"

// Error kinds returned by service operations. Handlers classify these with
// errors.Is and map them to transport status codes; anything else is treated
// as an internal error.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnavailable  = errors.New("service unavailable")
)
