package database

import "github.com/pkg/errors"

// ErrNotFound is wrapped by the errors returned for missing keys.
var ErrNotFound = errors.New("not found")

// IsNotFoundError returns whether err is about a missing key.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
