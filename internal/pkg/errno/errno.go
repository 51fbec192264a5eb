// Package errno defines the user-visible error taxonomy. Every failure that
// crosses the HTTP or realtime boundary is reduced to one of these values so
// no internal detail leaks to callers.
package errno

import (
	"errors"
	"fmt"
	"net/http"
)

// Errno is a status-coded, user-visible error.
type Errno struct {
	HTTP    int    `json:"-"`
	Reason  string `json:"code"`
	Message string `json:"message"`
}

func (e *Errno) Error() string {
	return e.Message
}

// WithMessage returns a copy of e carrying msg.
func (e *Errno) WithMessage(format string, args ...any) *Errno {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

// Is matches any Errno with the same reason, so a copy made by WithMessage
// still satisfies errors.Is against the base value.
func (e *Errno) Is(target error) bool {
	var t *Errno
	if errors.As(target, &t) {
		return t.Reason == e.Reason
	}
	return false
}

var (
	OK = &Errno{HTTP: http.StatusOK, Reason: "OK", Message: ""}

	// ErrValidation covers malformed or missing input.
	ErrValidation = &Errno{HTTP: http.StatusBadRequest, Reason: "InvalidArgument", Message: "Request is invalid."}

	ErrUnauthenticated = &Errno{HTTP: http.StatusUnauthorized, Reason: "Unauthenticated", Message: "Authentication is required."}

	// ErrPermission covers a disabled capability or a missing or wrong PIN.
	ErrPermission = &Errno{HTTP: http.StatusForbidden, Reason: "PermissionDenied", Message: "Permission denied."}

	// ErrNotFound is also returned for resources owned by someone else, so
	// callers cannot test for existence.
	ErrNotFound = &Errno{HTTP: http.StatusNotFound, Reason: "NotFound", Message: "Resource not found."}

	// ErrUnavailable reports a vehicle that is not connected.
	ErrUnavailable = &Errno{HTTP: http.StatusServiceUnavailable, Reason: "Unavailable", Message: "Vehicle is not connected."}

	ErrInternal = &Errno{HTTP: http.StatusInternalServerError, Reason: "InternalError", Message: "Internal server error."}
)

// FromError reduces err to an Errno. Anything that is not already an Errno
// becomes ErrInternal with its detail dropped.
func FromError(err error) *Errno {
	if err == nil {
		return OK
	}
	var e *Errno
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal
}
