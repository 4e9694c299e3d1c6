package engine

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrProbe             = errors.New("probe failed")
	ErrSecurityViolation = errors.New("destination escapes the download directory")
	ErrTransfer          = errors.New("transfer failed")
	ErrMerge             = errors.New("merge failed")
	ErrInvalidState      = errors.New("invalid state transition")
)

// errStopped marks an attempt that ended because its stop token fired.
var errStopped = errors.New("attempt stopped")
