package core

import (
	"errors"
)

var (
	ErrEmptyPath         = errors.New("path must not be empty")
	ErrNotFound          = errors.New("not found")
	ErrLoadTimeout       = errors.New("load did not complete before the deadline")
	ErrNotInitialized    = errors.New("system used before initialization")
	ErrAlreadyRegistered = errors.New("already registered")
	ErrCancelled         = errors.New("cancelled")
	ErrUnknown           = errors.New("unknown")
)
