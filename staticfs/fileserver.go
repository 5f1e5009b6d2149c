// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package staticfs

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/cache"
	"github.com/momentics/hioload-httpd/protocol"
)

// IndexFile is served for directory requests and the index aliases.
const IndexFile = "index.html"

// Mount serves Root under the URL Prefix ("/" or "/files", no trailing slash
// except for the root mount).
type Mount struct {
	Prefix string
	Root   string
}

// aliases map fixed URL paths on the "/" mount to files in its root.
var aliases = map[string]string{
	"/":                   IndexFile,
	"/index":              IndexFile,
	"/index.htm":          IndexFile,
	"/index.html":         IndexFile,
	"/default.htm":        IndexFile,
	"/default.html":       IndexFile,
	"/login":              "login.html",
	"/login.htm":          "login.html",
	"/register":           "register.html",
	"/register.htm":       "register.html",
	"/reset-password":     "reset-password.html",
	"/reset-password.htm": "reset-password.html",
}

// FileServer is a Handler for GET and HEAD on mounted directories.
type FileServer struct {
	mounts []Mount // canonical roots, longest prefix first
	cache  *cache.AssetCache
	logger api.Logger
}

// New canonicalizes the mount roots. The cache is required; logger may be
// nil.
func New(c *cache.AssetCache, logger api.Logger, mounts ...Mount) (*FileServer, error) {
	if c == nil || len(mounts) == 0 {
		return nil, fmt.Errorf("staticfs: %w: need a cache and at least one mount", api.ErrInvalidArgument)
	}
	fsrv := &FileServer{cache: c, logger: logger}
	for _, m := range mounts {
		root, err := canonical(m.Root)
		if err != nil {
			return nil, fmt.Errorf("staticfs: mount %s: %w", m.Prefix, err)
		}
		prefix := "/" + strings.Trim(m.Prefix, "/")
		fsrv.mounts = append(fsrv.mounts, Mount{Prefix: prefix, Root: root})
		fsrv.logf("[static] mount %s -> %s", prefix, root)
	}
	sort.SliceStable(fsrv.mounts, func(i, j int) bool {
		return len(fsrv.mounts[i].Prefix) > len(fsrv.mounts[j].Prefix)
	})
	return fsrv, nil
}

// canonical resolves symlinks where the path exists and otherwise falls
// back to the cleaned absolute path.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

func (f *FileServer) logf(format string, args ...any) {
	if f.logger != nil {
		f.logger.Printf(format, args...)
	}
}

// Handle serves the file named by the request path.
func (f *FileServer) Handle(req *protocol.Request) *protocol.Response {
	method := req.Method()
	if method != fasthttp.MethodGet && method != fasthttp.MethodHead {
		return protocol.ErrorResponse(fasthttp.StatusMethodNotAllowed, "").
			SetHeader("Allow", "GET, HEAD")
	}
	rawPath := req.URLPath()
	decoded, err := url.PathUnescape(rawPath)
	if err != nil || !strings.HasPrefix(decoded, "/") {
		return protocol.ErrorResponse(fasthttp.StatusBadRequest, "")
	}

	full, ok := f.resolve(decoded)
	if !ok {
		return protocol.ErrorResponse(fasthttp.StatusForbidden, "")
	}

	fi, err := os.Stat(full)
	if err != nil {
		return f.statError(err)
	}
	if fi.IsDir() {
		if !strings.HasSuffix(rawPath, "/") {
			loc := rawPath + "/"
			if q := req.Query(); q != "" {
				loc += "?" + q
			}
			return protocol.Redirect(fasthttp.StatusFound, loc)
		}
		full = filepath.Join(full, IndexFile)
		if fi, err = os.Stat(full); err != nil {
			return f.statError(err)
		}
		if fi.IsDir() {
			return protocol.ErrorResponse(fasthttp.StatusNotFound, "")
		}
	}

	entry, hit := f.cache.Lookup(full)
	if !hit {
		body, err := os.ReadFile(full)
		if err != nil {
			return f.statError(err)
		}
		entry = cache.CachedResponse{Body: body, ContentType: ContentType(full), ModTime: fi.ModTime()}
		f.cache.Store(full, entry)
	}
	return buildResponse(entry, req)
}

// resolve maps a decoded URL path to a file path confined to the mounts.
func (f *FileServer) resolve(decoded string) (string, bool) {
	for _, m := range f.mounts {
		var rel string
		switch {
		case m.Prefix == "/":
			rel = decoded
			if name, ok := aliases[decoded]; ok {
				rel = name
			}
		case decoded == m.Prefix || strings.HasPrefix(decoded, m.Prefix+"/"):
			rel = strings.TrimPrefix(decoded, m.Prefix)
		default:
			continue
		}
		full := filepath.Join(m.Root, filepath.FromSlash(rel))
		if resolved, err := filepath.EvalSymlinks(full); err == nil {
			full = resolved
		}
		return full, f.permitted(full)
	}
	return "", false
}

// permitted reports whether p lies within any mount root.
func (f *FileServer) permitted(p string) bool {
	for _, m := range f.mounts {
		if p == m.Root || strings.HasPrefix(p, m.Root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (f *FileServer) statError(err error) *protocol.Response {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return protocol.ErrorResponse(fasthttp.StatusNotFound, "")
	case errors.Is(err, fs.ErrPermission):
		return protocol.ErrorResponse(fasthttp.StatusForbidden, "")
	}
	f.logf("[static] %v", err)
	return protocol.ErrorResponse(fasthttp.StatusInternalServerError, "")
}

func buildResponse(entry cache.CachedResponse, req *protocol.Request) *protocol.Response {
	accept, _ := req.Header("Accept-Encoding")
	body, enc := entry.Select(accept)

	resp := protocol.NewResponse(fasthttp.StatusOK).
		SetContentType(entry.ContentType).
		SetHeader("Last-Modified", string(fasthttp.AppendHTTPDate(nil, entry.ModTime))).
		SetBody(body)
	if len(entry.Encoded) > 0 {
		resp.SetHeader("Vary", "Accept-Encoding")
	}
	if enc != "" {
		resp.SetHeader("Content-Encoding", enc)
	}
	return resp
}
