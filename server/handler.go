// File: server/handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"sort"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/momentics/hioload-httpd/protocol"
)

// Handler turns one complete request into a response. It runs on a worker
// goroutine and must not block on network I/O. A nil response or an empty
// body is answered with 500.
type Handler interface {
	Handle(req *protocol.Request) *protocol.Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(req *protocol.Request) *protocol.Response

// Handle calls f(req).
func (f HandlerFunc) Handle(req *protocol.Request) *protocol.Response { return f(req) }

// Mux routes by method and path. A pattern ending in "/" matches every path
// below it; the longest matching pattern wins. Routes must be registered
// before the server starts.
type Mux struct {
	routes   []route
	NotFound Handler
}

type route struct {
	method  string // "" matches any method
	pattern string
	handler Handler
}

// NewMux returns an empty router answering unknown paths with 404.
func NewMux() *Mux {
	return &Mux{}
}

// Route registers h for method and pattern. An empty method matches all.
func (m *Mux) Route(method, pattern string, h Handler) {
	m.routes = append(m.routes, route{method: method, pattern: pattern, handler: h})
	sort.SliceStable(m.routes, func(i, j int) bool {
		return len(m.routes[i].pattern) > len(m.routes[j].pattern)
	})
}

// RouteFunc registers a function handler.
func (m *Mux) RouteFunc(method, pattern string, fn func(*protocol.Request) *protocol.Response) {
	m.Route(method, pattern, HandlerFunc(fn))
}

// Handle dispatches req. A path matched only under other methods yields 405
// with an Allow header.
func (m *Mux) Handle(req *protocol.Request) *protocol.Response {
	path := req.URLPath()
	var allow []string
	for _, r := range m.routes {
		if !matchPattern(r.pattern, path) {
			continue
		}
		if r.method == "" || r.method == req.Method() {
			return r.handler.Handle(req)
		}
		allow = append(allow, r.method)
	}
	if len(allow) > 0 {
		return protocol.ErrorResponse(fasthttp.StatusMethodNotAllowed, "").
			SetHeader("Allow", strings.Join(allow, ", "))
	}
	if m.NotFound != nil {
		return m.NotFound.Handle(req)
	}
	return protocol.ErrorResponse(fasthttp.StatusNotFound, "")
}

func matchPattern(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/") {
		return strings.HasPrefix(path, pattern)
	}
	return pattern == path
}
