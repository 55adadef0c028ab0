package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error is the structured error surfaced over HTTP: a status, a stable
// machine-readable code, and an optional sanitized detail string. The
// wrapped error is what gets logged; the transport shape below is what
// clients see.
type Error struct {
	Status  int
	Code    string
	Err     error // The error this wraps
	Details string
}

// Code tags an argument to [E] as the machine-readable error code.
type Code string

// Detail tags an argument to [E] as the client-safe details string.
type Detail string

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type transport struct {
	Message string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(transport{
		Message: e.Err.Error(),
		Code:    e.Code,
		Details: e.Details,
	})
}

func (e *Error) UnmarshalJSON(byts []byte) error {
	t := transport{}
	if err := json.Unmarshal(byts, &t); err != nil {
		return err
	}

	e.Err = errors.New(t.Message)
	e.Code = t.Code
	e.Details = t.Details
	return nil
}

// E assembles an Error from its parts in any order: a string or error
// becomes the message, an int the status, a [Code] the code, a [Detail]
// the details.
func E(args ...any) *Error {
	ret := &Error{
		Status: http.StatusInternalServerError,
		Code:   "INTERNAL_ERROR",
	}

	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			ret.Err = errors.New(arg)
		case error:
			ret.Err = arg
		case int:
			ret.Status = arg
		case Code:
			ret.Code = string(arg)
		case Detail:
			ret.Details = string(arg)
		}
	}

	return ret
}
