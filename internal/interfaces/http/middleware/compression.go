package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

// gzipReaderPool reuses gzip readers to reduce allocations
var gzipReaderPool sync.Pool

// gzipBody closes the pooled reader together with the original body
type gzipBody struct {
	*gzip.Reader
	body   io.ReadCloser
	closed bool
}

func (b *gzipBody) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	err := b.body.Close()
	gzipReaderPool.Put(b.Reader)
	return err
}

// Decompression middleware transparently inflates request bodies sent with
// Content-Encoding: gzip. Log shippers usually compress batches.
func Decompression(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		encoding := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding")))
		switch encoding {
		case "", "identity":
			next.ServeHTTP(w, r)
			return
		case "gzip":
		default:
			WriteJSON(w, http.StatusUnsupportedMediaType, map[string]string{"error": "unsupported content encoding: " + encoding})
			return
		}

		var (
			gz  *gzip.Reader
			err error
		)
		if pooled, ok := gzipReaderPool.Get().(*gzip.Reader); ok {
			gz = pooled
			err = gz.Reset(r.Body)
		} else {
			gz, err = gzip.NewReader(r.Body)
		}
		if err != nil {
			WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid gzip body"})
			return
		}

		r.Body = &gzipBody{Reader: gz, body: r.Body}
		r.Header.Del("Content-Encoding")
		r.Header.Del("Content-Length")
		r.ContentLength = -1

		next.ServeHTTP(w, r)
	})
}
