// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handlers

import (
	"github.com/valyala/fasthttp"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/cache"
	"github.com/momentics/hioload-httpd/server"
	"github.com/momentics/hioload-httpd/staticfs"
)

// SiteConfig names the directories the default site serves.
type SiteConfig struct {
	StaticDir string // served under "/"
	DriveDir  string // served under DriveURL, optional
	DriveURL  string // defaults to "/files"
}

// NewSite wires the static file server and the form echo into one router:
// GET and HEAD go to files, POST /data echoes the form, other POST paths go
// to UnknownPost and any other method gets 405.
func NewSite(cfg SiteConfig, c *cache.AssetCache, logger api.Logger) (*server.Mux, error) {
	mounts := []staticfs.Mount{{Prefix: "/", Root: cfg.StaticDir}}
	if cfg.DriveDir != "" {
		prefix := cfg.DriveURL
		if prefix == "" {
			prefix = "/files"
		}
		mounts = append(mounts, staticfs.Mount{Prefix: prefix, Root: cfg.DriveDir})
	}
	files, err := staticfs.New(c, logger, mounts...)
	if err != nil {
		return nil, err
	}

	mux := server.NewMux()
	mux.RouteFunc(fasthttp.MethodPost, "/data", FormEcho)
	mux.RouteFunc(fasthttp.MethodPost, "/", UnknownPost)
	mux.Route(fasthttp.MethodGet, "/", files)
	mux.Route(fasthttp.MethodHead, "/", files)
	return mux, nil
}
