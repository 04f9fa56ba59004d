package vault

import "errors"

var (
	// ErrRecordNotFound deliberately conflates "does not exist" with "not
	// owned by the caller" so neither case leaks information.
	ErrRecordNotFound = errors.New("vault: record not found")

	ErrInvalidInput = errors.New("vault: invalid input")
)
