package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrProjectNotFound = errors.New("project not found")
	ErrProjectExists   = errors.New("project already exists")
)
