package api

import "errors"

// Common errors for collaborator API operations
var (
	ErrStepNotFound = errors.New("step not found")
	ErrRunNotFound  = errors.New("run not found")
)
