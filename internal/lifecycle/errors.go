package lifecycle

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownRun is returned for run ids that were never spawned by the manager.
var ErrUnknownRun = errors.New("unknown run")

// ErrWaitTimeout is matched by every WaitTimeoutError.
var ErrWaitTimeout = errors.New("wait timed out")

// WaitTimeoutError reports that a wait gave up before the run finished.
// The run itself keeps going.
type WaitTimeoutError struct {
	RunID   string
	Timeout time.Duration
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("wait timed out after %s", e.Timeout)
}

// Is makes errors.Is(err, ErrWaitTimeout) true.
func (e *WaitTimeoutError) Is(target error) bool {
	return target == ErrWaitTimeout
}

func unknownRun(id string) error {
	return fmt.Errorf("%w: %s", ErrUnknownRun, id)
}
