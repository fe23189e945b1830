package tls

import "errors"

var (
	// ErrClosed is wrapped in the panic value raised when a closed
	// registry or broadcast value is used.
	ErrClosed = errors.New("use of closed value")

	// ErrExited is wrapped in the panic value raised when storage is
	// requested for a thread handle that has already exited.
	ErrExited = errors.New("thread has exited")
)
