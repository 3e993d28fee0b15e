// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package worker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ManuGH/reelvault/internal/catalog"
)

var (
	// ErrTimeout is returned when no response arrived within the operation window.
	ErrTimeout = errors.New("worker operation timed out")
	// ErrWorkerExited is returned for operations pending or submitted after the worker stopped.
	ErrWorkerExited = errors.New("persistence worker exited")
	// ErrNotInitialized is reported by the worker for business operations before init.
	ErrNotInitialized = errors.New("persistence worker not initialized")
	// ErrUnknownOperation is reported by the worker for unregistered types.
	ErrUnknownOperation = errors.New("unknown worker operation")
)

// RemoteError is a failure reported by the worker itself (success=false).
// Its message is exactly the text the worker sent.
type RemoteError struct {
	Op      OpType
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// remoteSentinels are the errors a worker may wrap into a failure message.
// Client-side sentinels such as ErrTimeout are never reported remotely.
var remoteSentinels = []error{
	catalog.ErrRootNotFound,
	catalog.ErrDuplicateRoot,
	catalog.ErrInvalidRoot,
	ErrNotInitialized,
	ErrUnknownOperation,
}

// Is lets callers match sentinel errors that the worker wrapped before the
// text crossed the message boundary, e.g. errors.Is(err, catalog.ErrRootNotFound).
func (e *RemoteError) Is(target error) bool {
	for _, s := range remoteSentinels {
		if target == s {
			return strings.HasPrefix(e.Message, s.Error())
		}
	}
	return false
}

// CrashError wraps the reason a worker failed abnormally.
type CrashError struct {
	Cause error
}

func (e *CrashError) Error() string {
	return fmt.Sprintf("%s: %v", ErrWorkerExited, e.Cause)
}

func (e *CrashError) Unwrap() []error { return []error{ErrWorkerExited, e.Cause} }
