package openhab

import "fmt"

// TransportError wraps a network-level failure: DNS, refused connection,
// timeout. The middleware never saw the request (or the response never
// arrived).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("middleware unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteError means the middleware answered with a non-2xx status.
type RemoteError struct {
	StatusCode int
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("middleware returned status %d", e.StatusCode)
}

// ParseError means the response body was not the JSON shape we expect.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed middleware response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
