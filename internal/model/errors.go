package model

import "errors"

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrLastAccount is returned when deleting the only account of a profile.
	ErrLastAccount = errors.New("last account")
	// ErrNoCurrentProfile is returned when an operation needs a selected profile.
	ErrNoCurrentProfile = errors.New("no current profile")
)
