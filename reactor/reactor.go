// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral constructor and errors.

package reactor

import (
	"errors"

	"github.com/momentics/hioload-httpd/api"
)

// ErrClosed is returned by operations on a closed reactor.
var ErrClosed = errors.New("reactor: closed")

// DefaultBatch is the number of events fetched by one Poll when the caller
// does not size the slice itself.
const DefaultBatch = 128

// New constructs the platform reactor.
func New() (api.Reactor, error) {
	return newPlatformReactor()
}
