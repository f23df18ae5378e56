package parser

import "errors"

// Configuration errors. They are returned before any text is parsed and
// are wrapped with the offending name.
var (
	ErrDuplicate          = errors.New("already registered")
	ErrFrozen             = errors.New("registry is frozen")
	ErrVersionMismatch    = errors.New("parser definitions version mismatch")
	ErrInvalidDefinition  = errors.New("invalid parser definitions")
	ErrFSMNotFound        = errors.New("parser not found")
	ErrModuleNotFound     = errors.New("module not found")
	ErrStateNotFound      = errors.New("state not found")
	ErrTransitionNotFound = errors.New("transition function not found")
)
