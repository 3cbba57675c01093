package middleware

import (
	"net/http"

	"github.com/pkordes/users-api/internal/domain"
)

// BodyTooLargeMessage is the client message for an oversized request body.
const BodyTooLargeMessage = "request body too large"

// NewMaxBodySizeHandler returns a middleware that limits incoming request body
// sizes to limit bytes. A request whose Content-Length already exceeds the
// limit is answered through ew with a BadRequest before the next handler runs.
// Otherwise the body is wrapped in http.MaxBytesReader, so reads past the
// limit fail with *http.MaxBytesError and the handler reports the same
// BadRequest.
func NewMaxBodySizeHandler(limit int64, ew ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				ew.WriteError(w, r, domain.BadRequest(BodyTooLargeMessage,
					domain.WithField("content_length", r.ContentLength),
					domain.WithField("limit", limit),
				))
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
