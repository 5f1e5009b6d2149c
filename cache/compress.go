// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package cache

import (
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/momentics/hioload-httpd/pool"
)

// Content-codings produced for cached bodies, in server preference order.
const (
	EncodingBrotli = "br"
	EncodingZstd   = "zstd"
	EncodingGzip   = "gzip"
)

var preference = []string{EncodingBrotli, EncodingZstd, EncodingGzip}

// EncodeAll is safe for concurrent use, so one encoder serves every store.
var zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))

// Compressible reports whether a body of this media type is worth encoding.
func Compressible(contentType string) bool {
	mt, _, _ := strings.Cut(contentType, ";")
	mt = strings.TrimSpace(strings.ToLower(mt))
	if strings.HasPrefix(mt, "text/") {
		return true
	}
	switch mt {
	case "application/javascript", "application/json", "application/xml",
		"application/xhtml+xml", "image/svg+xml", "application/wasm":
		return true
	}
	return false
}

// encodeVariants returns the encodings that came out smaller than body.
func encodeVariants(body []byte) map[string][]byte {
	out := make(map[string][]byte, len(preference))
	if b, err := brotliEncode(body); err == nil && len(b) < len(body) {
		out[EncodingBrotli] = b
	}
	if b := zstdEncoder.EncodeAll(body, nil); len(b) < len(body) {
		out[EncodingZstd] = b
	}
	if b, err := gzipEncode(body); err == nil && len(b) < len(body) {
		out[EncodingGzip] = b
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func brotliEncode(body []byte) ([]byte, error) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)
	w := brotli.NewWriterLevel(buf, brotli.BestCompression)
	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.B...), nil
}

func gzipEncode(body []byte) ([]byte, error) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)
	w, err := gzip.NewWriterLevel(buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.B...), nil
}

// Select picks the best stored variant acceptable under the given
// Accept-Encoding header. It falls back to the identity body with an empty
// encoding.
func (r CachedResponse) Select(acceptEncoding string) (body []byte, encoding string) {
	if len(r.Encoded) == 0 || acceptEncoding == "" {
		return r.Body, ""
	}
	accepted := parseAcceptEncoding(acceptEncoding)
	for _, enc := range preference {
		b, ok := r.Encoded[enc]
		if !ok {
			continue
		}
		if want, listed := accepted[enc]; listed {
			if want {
				return b, enc
			}
			continue
		}
		if accepted["*"] {
			return b, enc
		}
	}
	return r.Body, ""
}

// parseAcceptEncoding returns the codings listed with a non-zero q value.
func parseAcceptEncoding(h string) map[string]bool {
	out := make(map[string]bool)
	for _, part := range strings.Split(h, ",") {
		name, params, _ := strings.Cut(part, ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		out[name] = qValue(params) > 0
	}
	return out
}

func qValue(params string) float64 {
	params = strings.TrimSpace(params)
	if !strings.HasPrefix(params, "q=") {
		return 1
	}
	q, err := strconv.ParseFloat(strings.TrimSpace(params[2:]), 64)
	if err != nil {
		return 0
	}
	return q
}
