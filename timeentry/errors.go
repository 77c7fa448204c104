package timeentry

import (
	"errors"
	"fmt"
)

// ErrorClass is the tagged outcome of one fetch.
type ErrorClass int

const (
	ClassSuccess     ErrorClass = iota // 2xx, parse normally
	ClassServerError                   // 5xx, parse normally
	ClassTransport                     // network failure or unreadable body, retry silently
	ClassAuthFailure                   // 401/403, counted toward auto-stop
	ClassClientError                   // other 4xx, transient
)

// String returns the class name.
func (c ErrorClass) String() string {
	switch c {
	case ClassSuccess:
		return "Success"
	case ClassServerError:
		return "ServerError"
	case ClassTransport:
		return "Transport"
	case ClassAuthFailure:
		return "AuthFailure"
	case ClassClientError:
		return "ClientError"
	default:
		return fmt.Sprintf("ErrorClass(%d)", int(c))
	}
}

// FetchError is returned by FetchCurrent for every non-payload outcome.
type FetchError struct {
	Class      ErrorClass
	StatusCode int   // 0 for transport failures
	Err        error // underlying cause, may be nil for HTTP status errors
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: HTTP %d: %v", e.Class, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: HTTP %d", e.Class, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Class, e.Err)
	default:
		return e.Class.String()
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// ClassOf returns the class carried by err.
// nil is ClassSuccess, errors that are not a *FetchError count as ClassTransport.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ClassSuccess
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Class
	}
	return ClassTransport
}

// classifyStatus maps an HTTP status code to its class.
func classifyStatus(code int) ErrorClass {
	switch {
	case code == 401 || code == 403:
		return ClassAuthFailure
	case code >= 400 && code < 500:
		return ClassClientError
	case code >= 500:
		return ClassServerError
	default:
		return ClassSuccess
	}
}
