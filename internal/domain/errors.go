package domain

import "errors"

// Error taxonomy per SPEC_FULL.md §7. Submission-path errors (Validation,
// NotFound, StateConflict) are surfaced to the caller unchanged; transient
// errors are contained inside the worker loop and never propagate as job
// outcomes.
var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrStateConflict      = errors.New("state conflict")
	ErrTransientStore     = errors.New("durable store unavailable")
	ErrTransientFastQueue = errors.New("fast queue unavailable")
	ErrUnknownHandler     = errors.New("unknown job type")
)
