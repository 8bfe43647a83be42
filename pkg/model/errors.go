package model

import "errors"

var (
	// ErrInvalidConfig reports a configuration that fails Validate.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrInvalidLayout reports a structurally malformed layout manifest.
	ErrInvalidLayout = errors.New("invalid layout")

	// ErrUnknownField reports a layout dimension naming a config key that
	// does not exist.
	ErrUnknownField = errors.New("unknown config field")

	// ErrUndefinedBlock reports a block type missing from the registry.
	ErrUndefinedBlock = errors.New("undefined block type")

	// ErrShapeMismatch reports layers whose dimensions do not chain.
	ErrShapeMismatch = errors.New("shape mismatch")
)
