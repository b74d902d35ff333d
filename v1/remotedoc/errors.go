package remotedoc

import "errors"

var (
	// ErrNoClient is returned by New for an unknown client name.
	ErrNoClient = errors.New("no remote client specified")

	// ErrNotFound is returned when no document is stored under a key.
	ErrNotFound = errors.New("remote document not found")

	// ErrInvalidDocument is returned when an upload is not valid base64.
	ErrInvalidDocument = errors.New("remote document is not valid base64")

	// ErrInvalidKey is returned for empty keys and keys leaving the storage
	// root.
	ErrInvalidKey = errors.New("invalid remote document key")
)
