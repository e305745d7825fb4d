package service

import "errors"

// Sentinel errors mapped to response codes at the handler edge. Claim and
// release never return these for protocol outcomes; they return structured
// results instead.
var (
	ErrNotFound          = errors.New("job not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrValidation        = errors.New("validation failed")
)
