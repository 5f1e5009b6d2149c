// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package staticfs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/momentics/hioload-httpd/cache"
	"github.com/momentics/hioload-httpd/protocol"
)

func request(t *testing.T, method, target string, headers ...string) *protocol.Request {
	t.Helper()
	raw := method + " " + target + " HTTP/1.1\r\n"
	for _, h := range headers {
		raw += h + "\r\n"
	}
	raw += "\r\n"
	r := protocol.NewRequest()
	if ok, err := r.ParseHeader([]byte(raw)); !ok || err != nil {
		t.Fatalf("parse %q: ok=%v err=%v", raw, ok, err)
	}
	return r
}

type site struct {
	static, drive string
	fs            *FileServer
	cache         *cache.AssetCache
}

func newSite(t *testing.T) *site {
	t.Helper()
	base := t.TempDir()
	s := &site{static: filepath.Join(base, "static"), drive: filepath.Join(base, "drive")}
	for _, d := range []string{s.static, s.drive, filepath.Join(s.static, "docs"), filepath.Join(s.static, "empty")} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	files := map[string]string{
		filepath.Join(s.static, "index.html"):         "<h1>home</h1>",
		filepath.Join(s.static, "login.html"):         "<form>login</form>",
		filepath.Join(s.static, "app.js"):             strings.Repeat("console.log('x');\n", 40),
		filepath.Join(s.static, "docs", "index.html"): "docs index",
		filepath.Join(s.static, "a b.txt"):            "spaced",
		filepath.Join(s.drive, "report.pdf"):          "%PDF-1.4",
		filepath.Join(base, "secret.txt"):             "top secret",
	}
	for p, body := range files {
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	s.cache = cache.New(nil)
	fsrv, err := New(s.cache, nil, Mount{Prefix: "/", Root: s.static}, Mount{Prefix: "/files", Root: s.drive})
	if err != nil {
		t.Fatal(err)
	}
	s.fs = fsrv
	return s
}

func TestFileServerRouting(t *testing.T) {
	s := newSite(t)
	cases := []struct {
		target   string
		code     int
		body     string
		location string
	}{
		{"/", 200, "<h1>home</h1>", ""},
		{"/default.htm", 200, "<h1>home</h1>", ""},
		{"/login", 200, "<form>login</form>", ""},
		{"/a%20b.txt", 200, "spaced", ""},
		{"/docs", 302, "", "/docs/"},
		{"/docs?x=1", 302, "", "/docs/?x=1"},
		{"/docs/", 200, "docs index", ""},
		{"/empty/", 404, "", ""},
		{"/missing.html", 404, "", ""},
		{"/files/report.pdf", 200, "%PDF-1.4", ""},
		{"/../secret.txt", 403, "", ""},
		{"/%2e%2e/secret.txt", 403, "", ""},
		{"/files/../../secret.txt", 403, "", ""},
		{"/bad%zz", 400, "", ""},
	}
	for _, tc := range cases {
		resp := s.fs.Handle(request(t, "GET", tc.target))
		if resp.StatusCode() != tc.code {
			t.Errorf("%s: status %d, want %d", tc.target, resp.StatusCode(), tc.code)
			continue
		}
		if tc.body != "" && string(resp.Body()) != tc.body {
			t.Errorf("%s: body %q", tc.target, resp.Body())
		}
		if len(resp.Body()) == 0 {
			t.Errorf("%s: empty body", tc.target)
		}
		if tc.location != "" {
			if loc, _ := resp.Header("Location"); loc != tc.location {
				t.Errorf("%s: location %q", tc.target, loc)
			}
		}
	}
}

func TestFileServerHeadersAndCache(t *testing.T) {
	s := newSite(t)
	resp := s.fs.Handle(request(t, "GET", "/index.html"))
	if ct, _ := resp.Header("Content-Type"); ct != "text/html; charset=UTF-8" {
		t.Fatalf("content type %q", ct)
	}
	if lm, _ := resp.Header("Last-Modified"); !strings.HasSuffix(lm, "GMT") {
		t.Fatalf("last-modified %q", lm)
	}
	if s.cache.Len() != 1 {
		t.Fatalf("cache len %d", s.cache.Len())
	}
	s.fs.Handle(request(t, "HEAD", "/index.html"))
	if st := s.cache.Stats(); st.Hits != 1 {
		t.Fatalf("second request not served from cache: %+v", st)
	}

	// A rewritten file must not be served from the stale entry.
	p := filepath.Join(s.static, "index.html")
	if err := os.WriteFile(p, []byte("<h1>v2</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	fi, _ := os.Stat(p)
	later := fi.ModTime().Add(2e9)
	if err := os.Chtimes(p, later, later); err != nil {
		t.Fatal(err)
	}
	if resp := s.fs.Handle(request(t, "GET", "/")); string(resp.Body()) != "<h1>v2</h1>" {
		t.Fatalf("stale body %q", resp.Body())
	}
}

func TestFileServerEncodings(t *testing.T) {
	s := newSite(t)
	s.fs.Handle(request(t, "GET", "/app.js")) // populate
	resp := s.fs.Handle(request(t, "GET", "/app.js", "Accept-Encoding: gzip, br"))
	if enc, _ := resp.Header("Content-Encoding"); enc != cache.EncodingBrotli {
		t.Fatalf("content-encoding %q", enc)
	}
	if v, _ := resp.Header("Vary"); v != "Accept-Encoding" {
		t.Fatalf("vary %q", v)
	}
	plain := s.fs.Handle(request(t, "GET", "/app.js"))
	if _, ok := plain.Header("Content-Encoding"); ok || len(plain.Body()) != 40*len("console.log('x');\n") {
		t.Fatal("identity body expected without Accept-Encoding")
	}
}

func TestFileServerMethodNotAllowed(t *testing.T) {
	s := newSite(t)
	resp := s.fs.Handle(request(t, "DELETE", "/"))
	if resp.StatusCode() != 405 {
		t.Fatalf("status %d", resp.StatusCode())
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"a.HTML":    "text/html; charset=UTF-8",
		"b.woff2":   "font/woff2",
		"c.unknown": "application/octet-stream",
	}
	for name, want := range cases {
		if got := ContentType(name); got != want {
			t.Errorf("%s: %q", name, got)
		}
	}
}
