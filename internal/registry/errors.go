package registry

import (
	"errors"
	"fmt"
)

// ErrLoad is matched by every error returned from a failed load.
var ErrLoad = errors.New("agent registry load failed")

// LoadError describes why a directory of agent documents could not be loaded.
// A LoadError aborts the whole load; no partial snapshot is produced.
type LoadError struct {
	// Path is the directory or document that failed.
	Path string
	// Reason is a short description of the failure.
	Reason string
	// Err is the underlying error, if any.
	Err error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load agents %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("load agents %s: %s", e.Path, e.Reason)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrLoad) true for every LoadError.
func (e *LoadError) Is(target error) bool {
	return target == ErrLoad
}

func loadErr(path, reason string, err error) *LoadError {
	return &LoadError{Path: path, Reason: reason, Err: err}
}
