package request

import (
	"net/http"

	"enrollment/pkg/platform/httputil"
)

// BodyLimit caps request bodies at maxBytes. A declared Content-Length over the limit is
// rejected with 413 before the handler runs; undeclared bodies are cut off by
// http.MaxBytesReader, which httputil.DecodeJSON also answers with 413.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				httputil.WriteBodyTooLarge(w)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
