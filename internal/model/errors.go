package model

import "errors"

var (
	// ErrNotFound is returned by repositories when no row matches.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional write matched no row.
	ErrConflict = errors.New("conflict")
)
