// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
	"golang.org/x/net/http/httpguts"
)

var headerTerminator = []byte("\r\n\r\n")

// TerminatorLen is the length of the blank line ending the header block.
const TerminatorLen = 4

// Header is one request or response header field.
type Header struct {
	Name  string
	Value string
}

// Request is the parser state for one HTTP/1.1 request. It is fed the whole
// accumulated read buffer on every call; fields committed by a successful
// ParseHeader are never re-parsed.
//
// Header names compare case-insensitively. A repeated header keeps its first
// position and takes the last value.
type Request struct {
	method  string
	path    string
	version string
	headers []Header
	body    []byte

	parsed        bool
	headerEnd     int // offset of the terminator, -1 until parsed
	contentLength int64
}

// NewRequest returns an empty parser in the awaiting-headers state.
func NewRequest() *Request {
	return &Request{headerEnd: -1}
}

// Reset clears the request for reuse.
func (r *Request) Reset() {
	r.method, r.path, r.version = "", "", ""
	r.headers = r.headers[:0]
	r.body = nil
	r.parsed = false
	r.headerEnd = -1
	r.contentLength = 0
}

// ParseHeader looks for the header terminator in buf. It returns false with a
// nil error while the header block is incomplete, and true once the request
// line and headers are committed. Malformed input yields a *StatusError (400).
func (r *Request) ParseHeader(buf []byte) (bool, error) {
	if r.parsed {
		return true, nil
	}
	end := bytes.Index(buf, headerTerminator)
	if end < 0 {
		return false, nil
	}

	block := buf[:end]
	line, rest, _ := bytes.Cut(block, []byte("\r\n"))
	method, path, version, err := parseRequestLine(string(line))
	if err != nil {
		return false, err
	}

	var headers []Header
	if r.headers != nil {
		headers = r.headers[:0]
	}
	for len(rest) > 0 {
		var raw []byte
		raw, rest, _ = bytes.Cut(rest, []byte("\r\n"))
		name, value, ok := strings.Cut(string(raw), ":")
		if !ok {
			return false, badRequest("header line without colon")
		}
		name = strings.Trim(name, " \t")
		value = strings.Trim(value, " \t")
		if !httpguts.ValidHeaderFieldName(name) {
			return false, badRequest("invalid header name %q", name)
		}
		if !httpguts.ValidHeaderFieldValue(value) {
			return false, badRequest("invalid value for header %q", name)
		}
		headers = setHeader(headers, name, value)
	}

	var contentLength int64
	if v, ok := lookupHeader(headers, "Content-Length"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return false, badRequest("invalid Content-Length %q", v)
		}
		if n > int64(math.MaxInt-end-TerminatorLen) {
			return false, &StatusError{Code: fasthttp.StatusRequestEntityTooLarge, Reason: "Content-Length overflows buffer size"}
		}
		contentLength = n
	}

	r.method, r.path, r.version = method, path, version
	r.headers = headers
	r.contentLength = contentLength
	r.headerEnd = end
	r.parsed = true
	return true, nil
}

func parseRequestLine(line string) (method, path, version string, err error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return "", "", "", badRequest("malformed request line %q", line)
	}
	method, path, version = fields[0], fields[1], fields[2]
	if !httpguts.ValidHeaderFieldName(method) {
		return "", "", "", badRequest("invalid method %q", method)
	}
	if !strings.HasPrefix(version, "HTTP/") {
		return "", "", "", badRequest("invalid version %q", version)
	}
	return method, path, version, nil
}

// ParseBody slices the body out of buf. It aliases buf and is short when buf
// holds fewer than TotalExpectedLength bytes; callers check first.
func (r *Request) ParseBody(buf []byte) error {
	if !r.parsed {
		return ErrHeadersNotParsed
	}
	start := r.headerEnd + TerminatorLen
	if start >= len(buf) || r.contentLength == 0 {
		r.body = nil
		return nil
	}
	stop := int64(start) + r.contentLength
	if stop > int64(len(buf)) || stop < int64(start) {
		stop = int64(len(buf))
	}
	r.body = buf[start:int(stop)]
	return nil
}

// TotalExpectedLength is header end + terminator + Content-Length, or -1
// while the headers are not parsed.
func (r *Request) TotalExpectedLength() int64 {
	if !r.parsed {
		return -1
	}
	return int64(r.headerEnd+TerminatorLen) + r.contentLength
}

// HeadersParsed reports whether ParseHeader has committed the header block.
func (r *Request) HeadersParsed() bool { return r.parsed }

// HeaderLen returns the header block size including its terminator, or -1.
func (r *Request) HeaderLen() int {
	if !r.parsed {
		return -1
	}
	return r.headerEnd + TerminatorLen
}

func (r *Request) Method() string       { return r.method }
func (r *Request) Path() string         { return r.path }
func (r *Request) Version() string      { return r.version }
func (r *Request) Body() []byte         { return r.body }
func (r *Request) ContentLength() int64 { return r.contentLength }

// URLPath returns the request target without its query string.
func (r *Request) URLPath() string {
	p, _, _ := strings.Cut(r.path, "?")
	return p
}

// Query returns the raw query string of the request target.
func (r *Request) Query() string {
	_, q, _ := strings.Cut(r.path, "?")
	return q
}

// Header returns the value of the named header.
func (r *Request) Header(name string) (string, bool) {
	return lookupHeader(r.headers, name)
}

// Headers returns a copy of the headers in first-occurrence order.
func (r *Request) Headers() []Header {
	out := make([]Header, len(r.headers))
	copy(out, r.headers)
	return out
}

// Boundary returns the multipart boundary token from Content-Type.
func (r *Request) Boundary() (string, bool) {
	ct, ok := r.Header("Content-Type")
	if !ok {
		return "", false
	}
	const prefix = "boundary="
	i := strings.Index(strings.ToLower(ct), prefix)
	if i < 0 {
		return "", false
	}
	b := ct[i+len(prefix):]
	if j := strings.IndexByte(b, ';'); j >= 0 {
		b = b[:j]
	}
	b = strings.Trim(strings.TrimSpace(b), `"`)
	if b == "" {
		return "", false
	}
	return b, true
}

func lookupHeader(hs []Header, name string) (string, bool) {
	for i := range hs {
		if strings.EqualFold(hs[i].Name, name) {
			return hs[i].Value, true
		}
	}
	return "", false
}

func setHeader(hs []Header, name, value string) []Header {
	for i := range hs {
		if strings.EqualFold(hs[i].Name, name) {
			hs[i].Value = value
			return hs
		}
	}
	return append(hs, Header{Name: name, Value: value})
}
