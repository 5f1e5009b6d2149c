// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handlers

import (
	"github.com/valyala/fasthttp"

	"github.com/momentics/hioload-httpd/pool"
	"github.com/momentics/hioload-httpd/protocol"
)

// FormEcho answers an urlencoded POST body with its decoded fields, one
// "name=value" line each, in body order. A body without fields is a 400.
func FormEcho(req *protocol.Request) *protocol.Response {
	var args fasthttp.Args
	if resp := parseForm(req, &args); resp != nil {
		return resp
	}

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)
	args.VisitAll(func(key, value []byte) {
		buf.B = append(buf.B, key...)
		buf.B = append(buf.B, '=')
		buf.B = append(buf.B, value...)
		buf.B = append(buf.B, '\n')
	})
	return protocol.NewResponse(fasthttp.StatusOK).
		SetContentType("text/plain; charset=UTF-8").
		SetBody(append([]byte(nil), buf.B...))
}

// UnknownPost answers a POST outside the known form endpoints. Missing form
// data is reported before the unknown path, so an empty body is a 400 on any
// path and a non-empty one a 405.
func UnknownPost(req *protocol.Request) *protocol.Response {
	var args fasthttp.Args
	if resp := parseForm(req, &args); resp != nil {
		return resp
	}
	return protocol.ErrorResponse(fasthttp.StatusMethodNotAllowed, "").
		SetHeader("Allow", "GET, HEAD")
}

// parseForm decodes the urlencoded body into args and returns the 400 page
// when it holds no fields.
func parseForm(req *protocol.Request, args *fasthttp.Args) *protocol.Response {
	args.ParseBytes(req.Body())
	if args.Len() == 0 {
		return protocol.ErrorResponse(fasthttp.StatusBadRequest, "No form data received.")
	}
	return nil
}
