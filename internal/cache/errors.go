package cache

import "fmt"

// StorageError is an I/O failure inside a cache store. Handlers map it to
// HTTP 500; it is never silently swallowed.
type StorageError struct {
	Op  string // "get", "put", "delete"
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("cache storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}
