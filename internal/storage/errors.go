package storage

import "errors"

// ErrNotFound is returned when no record exists for a key hash.
var ErrNotFound = errors.New("credential record not found")

// ErrClosed is returned by operations on a closed backend.
var ErrClosed = errors.New("storage is closed")
