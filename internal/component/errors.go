package component

import "errors"

var (
	// ErrNotFound is returned when no registry entry exists at a key.
	ErrNotFound = errors.New("component not found")

	// ErrUnknownFactory is returned when an entry names a factory that was
	// never registered in the catalog.
	ErrUnknownFactory = errors.New("unknown component factory")

	// ErrInvalidEntry is returned for registry entries of the wrong shape.
	ErrInvalidEntry = errors.New("invalid registry entry")

	// ErrDuplicateFactory is returned when registering a ref twice.
	ErrDuplicateFactory = errors.New("factory already registered")

	// ErrWrongType is returned when an instance is not of the requested type.
	ErrWrongType = errors.New("component has unexpected type")
)
