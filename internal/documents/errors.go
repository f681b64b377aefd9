package documents

import "errors"

// ErrNotFound indicates no document matches the lookup.
var ErrNotFound = errors.New("document not found")
