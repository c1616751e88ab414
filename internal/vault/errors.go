package vault

import "errors"

// Store error kinds. Callers classify failures with errors.Is; anything
// not matching one of these sentinels is an underlying filesystem error.
var (
	ErrPathInvalid      = errors.New("path outside managed root")
	ErrNotFound         = errors.New("no such entry")
	ErrAlreadyExists    = errors.New("entry already exists")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrIllegalOperation = errors.New("operation not allowed")
	ErrTooLarge         = errors.New("upload exceeds size limit")
)
