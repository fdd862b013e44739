package model

import "errors"

// Sentinel kinds for vote validation errors.
var (
	// ErrValidation marks malformed input rejected before any state mutates.
	ErrValidation = errors.New("invalid vote")
)
