// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"errors"
	"fmt"

	"github.com/valyala/fasthttp"
)

// ErrHeadersNotParsed is returned by ParseBody before ParseHeader succeeded.
var ErrHeadersNotParsed = errors.New("protocol: headers not parsed")

// StatusError is a request failure that maps to an HTTP status code.
type StatusError struct {
	Code   int
	Reason string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("protocol: %d: %s", e.Code, e.Reason)
}

func badRequest(format string, args ...any) error {
	return &StatusError{Code: fasthttp.StatusBadRequest, Reason: fmt.Sprintf(format, args...)}
}

// StatusCode extracts the HTTP status carried by err, falling back to 500.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return fasthttp.StatusInternalServerError
}
