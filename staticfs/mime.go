// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package staticfs

import (
	"mime"
	"path/filepath"
	"strings"
)

// mimeTypes takes precedence over the system table so text types always
// carry a charset.
var mimeTypes = map[string]string{
	".html":  "text/html; charset=UTF-8",
	".htm":   "text/html; charset=UTF-8",
	".css":   "text/css; charset=UTF-8",
	".js":    "application/javascript; charset=UTF-8",
	".json":  "application/json; charset=UTF-8",
	".xml":   "application/xml; charset=UTF-8",
	".txt":   "text/plain; charset=UTF-8",
	".csv":   "text/csv; charset=UTF-8",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".png":   "image/png",
	".gif":   "image/gif",
	".bmp":   "image/bmp",
	".ico":   "image/x-icon",
	".svg":   "image/svg+xml",
	".webp":  "image/webp",
	".pdf":   "application/pdf",
	".zip":   "application/zip",
	".tar":   "application/x-tar",
	".rar":   "application/vnd.rar",
	".mp3":   "audio/mpeg",
	".mp4":   "video/mp4",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".otf":   "font/otf",
	".eot":   "application/vnd.ms-fontobject",
}

// ContentType returns the media type for a file name.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := mimeTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
