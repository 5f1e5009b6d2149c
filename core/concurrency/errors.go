// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for concurrency module.

package concurrency

import "errors"

var (
	// ErrPoolClosed indicates the worker pool has been shut down
	ErrPoolClosed = errors.New("worker pool is closed")
)
