package middleware

import (
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/tracing"
)

// Trace opens a root span per request. Handlers below it add child spans
// through the request context; the tree is logged at debug level.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.Start(r.Context(), "http")
		rec := newRecorder(w)
		next.ServeHTTP(rec, r.WithContext(ctx))
		span.SetAttr("method", r.Method)
		span.SetAttr("path", normalizePath(r.URL.Path))
		span.SetAttr("status", rec.status)
		span.SetAttr("bytes", rec.bytes)
		span.End()
	})
}
