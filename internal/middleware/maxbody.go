package middleware

import "net/http"

// MaxBodySize caps the request body at n bytes. Reading past the limit makes
// the body return an error, which the JSON decoder in the handler reports as
// a bad request.
func MaxBodySize(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
