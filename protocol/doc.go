// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// HTTP/1.1 message codec for the engine: an incremental request parser that
// can be fed a growing read buffer any number of times, and a response
// builder that serializes status line, headers and body in one pass.
//
// The parser does no I/O and keeps no reference to the caller's buffer
// except the body slice, which aliases it.

package protocol
