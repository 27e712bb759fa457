package ioloop

import (
	"errors"
	"fmt"
)

// ErrOperationPending is returned when a second operation of the same kind
// is registered on a socket before the first completes.
var ErrOperationPending = errors.New("operation of this kind already pending on socket")

// LoopError represents a failure detected by the scheduler.
//
// Loop errors include:
//   - Bad handle: operation on a retired or out-of-range handle
//   - Socket errors: any OS-level failure during accept/connect/send/recv
//
// All loop errors are terminal; the simulator has no retry path.
type LoopError struct {
	// Code identifies the error category.
	Code LoopErrorCode

	// Op names the operation that failed (accept, connect, send, recv).
	Op string

	// Handle identifies the affected socket.
	Handle Handle

	// Err is the underlying OS error, if any.
	Err error
}

// LoopErrorCode categorizes loop errors.
type LoopErrorCode string

const (
	// ErrCodeBadHandle indicates an operation on a retired or unknown handle.
	ErrCodeBadHandle LoopErrorCode = "BAD_HANDLE"

	// ErrCodeSocket indicates an OS-level socket failure.
	ErrCodeSocket LoopErrorCode = "SOCKET_ERROR"

	// ErrCodeAddress indicates an unparsable or unsupported address.
	ErrCodeAddress LoopErrorCode = "BAD_ADDRESS"

	// ErrCodeShortBuffer indicates a send registered for more bytes than
	// its buffer holds.
	ErrCodeShortBuffer LoopErrorCode = "SHORT_BUFFER"
)

// Error implements the error interface.
func (e *LoopError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s on handle %d: %v", e.Code, e.Op, e.Handle, e.Err)
	}
	return fmt.Sprintf("%s: %s on handle %d", e.Code, e.Op, e.Handle)
}

// Unwrap returns the underlying OS error.
func (e *LoopError) Unwrap() error {
	return e.Err
}

// IsBadHandle returns true if the error is a bad-handle error.
// Uses errors.As to handle wrapped errors.
func IsBadHandle(err error) bool {
	var le *LoopError
	if errors.As(err, &le) {
		return le.Code == ErrCodeBadHandle
	}
	return false
}

func badHandleError(op string, h Handle) *LoopError {
	return &LoopError{Code: ErrCodeBadHandle, Op: op, Handle: h}
}

func socketError(op string, h Handle, err error) *LoopError {
	return &LoopError{Code: ErrCodeSocket, Op: op, Handle: h, Err: err}
}
