package domain

import "errors"

// Errors returned across the memory service. Callers classify with errors.Is.
var (
	// ErrStorageUnavailable is returned when the database file cannot be opened or created.
	ErrStorageUnavailable = errors.New("memory: storage unavailable")

	// ErrOperationFailed is returned when a call could not complete against storage.
	ErrOperationFailed = errors.New("memory: operation failed")

	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("memory: not found")

	// ErrAlreadyExists is returned when an insert collides with an existing key.
	ErrAlreadyExists = errors.New("memory: already exists")

	// ErrInvalidArgument is returned when a required argument is missing or malformed.
	ErrInvalidArgument = errors.New("memory: invalid argument")

	// ErrPolicyDenied is returned when the policy engine blocks a tool call.
	ErrPolicyDenied = errors.New("memory: denied by policy")
)
