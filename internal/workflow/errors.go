package workflow

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a remote call failed.
type ErrorKind string

const (
	// TransportError means the call never reached the server or the response never came back.
	TransportError ErrorKind = "transport"
	// ServerError means the server answered with a non-2xx status.
	ServerError ErrorKind = "server"
	// ParseError means the server answered 2xx but the body was not usable.
	ParseError ErrorKind = "parse"
)

// Op names one of the four remote operations.
type Op string

const (
	OpStart     Op = "start"
	OpDescribe  Op = "describe"
	OpRequest   Op = "request"
	OpSaveDraft Op = "save_draft"
)

// RemoteError is returned by every Client method on failure.
type RemoteError struct {
	Op         Op
	Kind       ErrorKind
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	switch e.Kind {
	case ServerError:
		if e.Body != "" {
			return fmt.Sprintf("%s: server returned %d (%s)", e.Op, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("%s: server returned %d", e.Op, e.StatusCode)
	case ParseError:
		return fmt.Sprintf("%s: bad response: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// KindOf extracts the ErrorKind from err. Errors that did not come from a
// Client are treated as transport failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Kind
	}
	return TransportError
}
