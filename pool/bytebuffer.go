// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package pool

import "github.com/valyala/bytebufferpool"

// ByteBuffer is a growable byte slice drawn from a calibrated pool.
type ByteBuffer = bytebufferpool.ByteBuffer

var buffers bytebufferpool.Pool

// GetBuffer returns an empty buffer. Release it with PutBuffer once no slice
// of its bytes is referenced anymore.
func GetBuffer() *ByteBuffer {
	return buffers.Get()
}

// PutBuffer returns b to the pool. A nil b is ignored.
func PutBuffer(b *ByteBuffer) {
	if b != nil {
		buffers.Put(b)
	}
}
