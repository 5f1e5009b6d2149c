// Package pool
// Author: momentics <momentics@gmail.com>
//
// Reusable memory for the connection engine: growable byte buffers backed by
// bytebufferpool for per-connection read and write buffers, and a typed
// sync.Pool wrapper for parser objects.
package pool
