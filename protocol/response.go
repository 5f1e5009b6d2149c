// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// ServerName is sent in the Server header unless a handler overrides it.
const ServerName = "hioload-httpd"

// Response is an HTTP/1.1 response under construction. Content-Length and
// Connection are always computed at serialization time.
type Response struct {
	code    int
	headers []Header
	body    []byte
}

// NewResponse creates a response with the given status code.
func NewResponse(code int) *Response {
	return &Response{code: code}
}

// StatusCode returns the status code.
func (r *Response) StatusCode() int { return r.code }

// SetHeader sets a header, replacing an existing one with the same name.
func (r *Response) SetHeader(name, value string) *Response {
	r.headers = setHeader(r.headers, name, value)
	return r
}

// Header returns the value of the named header.
func (r *Response) Header(name string) (string, bool) {
	return lookupHeader(r.headers, name)
}

// SetContentType is a shorthand for SetHeader("Content-Type", ct).
func (r *Response) SetContentType(ct string) *Response {
	return r.SetHeader("Content-Type", ct)
}

// SetBody sets the body without copying it.
func (r *Response) SetBody(b []byte) *Response {
	r.body = b
	return r
}

// SetBodyString sets the body from a string.
func (r *Response) SetBodyString(s string) *Response {
	r.body = []byte(s)
	return r
}

// Body returns the body.
func (r *Response) Body() []byte { return r.body }

// AppendTo serializes the response to dst. With omitBody (HEAD) the
// Content-Length still describes the body that would have been sent.
func (r *Response) AppendTo(dst []byte, omitBody bool) []byte {
	dst = append(dst, "HTTP/1.1 "...)
	dst = strconv.AppendInt(dst, int64(r.code), 10)
	dst = append(dst, ' ')
	dst = append(dst, fasthttp.StatusMessage(r.code)...)
	dst = append(dst, "\r\n"...)

	if _, ok := r.Header("Server"); !ok {
		dst = appendHeader(dst, "Server", ServerName)
	}
	if _, ok := r.Header("Date"); !ok {
		dst = append(dst, "Date: "...)
		dst = fasthttp.AppendHTTPDate(dst, time.Now())
		dst = append(dst, "\r\n"...)
	}
	for _, h := range r.headers {
		if strings.EqualFold(h.Name, "Content-Length") || strings.EqualFold(h.Name, "Connection") {
			continue
		}
		dst = appendHeader(dst, h.Name, h.Value)
	}
	dst = append(dst, "Content-Length: "...)
	dst = strconv.AppendInt(dst, int64(len(r.body)), 10)
	dst = append(dst, "\r\nConnection: close\r\n\r\n"...)
	if !omitBody {
		dst = append(dst, r.body...)
	}
	return dst
}

func appendHeader(dst []byte, name, value string) []byte {
	dst = append(dst, name...)
	dst = append(dst, ": "...)
	dst = append(dst, value...)
	return append(dst, "\r\n"...)
}

const errorPageTemplate = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>%[1]d %[2]s</title>
    <style>
        body { font-family: sans-serif; text-align: center; margin-top: 100px; color: #444; }
        h1 { font-size: 48px; }
        p { font-size: 20px; }
        a { color: #007acc; text-decoration: none; }
    </style>
</head>
<body>
    <h1>%[1]d - %[2]s</h1>
    <p>%[3]s</p>
    <p><a href="/">Back to Home</a></p>
</body>
</html>
`

var errorMessages = map[int]string{
	fasthttp.StatusBadRequest:                  "Your request is invalid or malformed.",
	fasthttp.StatusUnauthorized:                "You need to authenticate yourself to access this resource.",
	fasthttp.StatusForbidden:                   "You don't have permission to access this page.",
	fasthttp.StatusNotFound:                    "The page you're looking for doesn't exist.",
	fasthttp.StatusMethodNotAllowed:            "The method you're trying to use is not allowed for this resource.",
	fasthttp.StatusRequestEntityTooLarge:       "The request body is larger than the server accepts.",
	fasthttp.StatusRequestHeaderFieldsTooLarge: "The request headers are larger than the server accepts.",
	fasthttp.StatusInternalServerError:         "Something went wrong on the server.",
	fasthttp.StatusBadGateway:                  "The server received an invalid response from an upstream server.",
}

// ErrorResponse builds the HTML error page for code. tips, if non-empty, is
// appended to the standard message.
func ErrorResponse(code int, tips string) *Response {
	status := fasthttp.StatusMessage(code)
	msg, ok := errorMessages[code]
	if !ok {
		msg = strconv.Itoa(code) + " " + status
	}
	if tips != "" {
		msg += " " + tips
	}
	body := fmt.Sprintf(errorPageTemplate, code, html.EscapeString(status), html.EscapeString(msg))
	return NewResponse(code).
		SetContentType("text/html; charset=UTF-8").
		SetBodyString(body)
}

// Redirect builds a redirect to location (301, 302, 307 or 308).
func Redirect(code int, location string) *Response {
	return NewResponse(code).
		SetHeader("Location", location).
		SetContentType("text/plain; charset=UTF-8").
		SetBodyString("Redirecting to " + location)
}
