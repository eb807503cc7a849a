package store

import "errors"

// ErrNotFound indicates the requested record or setting does not exist
// in the local cache. Use errors.Is() to check.
var ErrNotFound = errors.New("not found in cache")
