package domain

import "errors"

// Domain errors can be checked with errors.Is.
var (
	// ErrInvalidConfig is returned when session sizes or other configuration fail validation.
	ErrInvalidConfig = errors.New("virusscan: invalid configuration")

	// ErrTransport marks failures opening, reading or writing the daemon connection,
	// and failures reading the input stream.
	ErrTransport = errors.New("virusscan: transport error")

	// ErrProtocol marks daemon responses that are not a recognized success line.
	ErrProtocol = errors.New("virusscan: protocol error")

	// ErrInvalidInvocation is returned when a workflow invocation is missing required fields.
	ErrInvalidInvocation = errors.New("virusscan: invalid invocation")

	// ErrQueueFull is returned when the invocation queue cannot accept more work.
	ErrQueueFull = errors.New("virusscan: invocation queue full")

	// ErrStopped is returned when work is submitted after shutdown began.
	ErrStopped = errors.New("virusscan: stopped")

	// ErrAlreadyRunning is returned by Start when the worker pool is running.
	ErrAlreadyRunning = errors.New("virusscan: already running")

	// ErrNotRunning is returned by Stop when the worker pool is not running.
	ErrNotRunning = errors.New("virusscan: not running")

	// ErrShutdownTimeout is returned when in-flight work does not finish in time.
	ErrShutdownTimeout = errors.New("virusscan: shutdown timeout")

	// ErrFileTooLarge marks dataset files skipped for exceeding the size limit.
	ErrFileTooLarge = errors.New("virusscan: file too large")
)
