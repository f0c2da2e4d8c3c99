package hwlink

import "fmt"

// AlreadyActiveError is returned by Connect when a connection attempt
// or an established connection is already in progress on this Link.
type AlreadyActiveError struct{}

func (e *AlreadyActiveError) Error() string { return "hwlink: connection already active or in progress" }

// NotConnectedError is returned by SendCommand when the link has no
// open port to write to.
type NotConnectedError struct{}

func (e *NotConnectedError) Error() string { return "hwlink: not connected" }

// OpenError wraps the underlying transport failure from opening a
// port.
type OpenError struct {
	Port  string
	Cause error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("hwlink: failed to open port %s: %v", e.Port, e.Cause)
}

func (e *OpenError) Unwrap() error { return e.Cause }
