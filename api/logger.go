// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Logger is the logging contract shared by every component. *log.Logger
// satisfies it.
type Logger interface {
	Printf(format string, args ...any)
}
