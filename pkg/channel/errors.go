package channel

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrUnreachable means no response was received: the backend is down, the
	// connection failed or the request timed out.
	ErrUnreachable = errors.New("chat backend unreachable")
	// ErrHTTPStatus means the backend answered with a non-success status.
	ErrHTTPStatus = errors.New("chat backend returned an error status")
	// ErrMalformedResponse means the body was not the expected JSON document.
	ErrMalformedResponse = errors.New("chat backend returned a malformed response")
)

// Error carries the failed operation together with one of the sentinel
// errors above.
type Error struct {
	Sentinel error
	Op       string
	Status   int
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("channel: %s: %v", e.Op, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Sentinel
}

// Cause returns the lower level error, if any.
func (e *Error) Cause() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Sentinel
}

// StatusCode extracts the HTTP status of an ErrHTTPStatus error.
func StatusCode(err error) (int, bool) {
	var cerr *Error
	if errors.As(err, &cerr) && cerr.Status > 0 {
		return cerr.Status, true
	}
	return 0, false
}
