// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket primitives for the HTTP engine: the owning descriptor handle, the
// non-blocking listening socket and accept, and errno classification.
// Everything here is non-blocking; callers loop until would-block.

package transport
