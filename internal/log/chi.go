package log

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// ChiMiddleware installs an http middleware that logs any http request and
// propagates the context logger into the request context.
func ChiMiddleware(ctx context.Context) func(handler http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return requestLogger(ctx)(next)
	}
}

func requestLogger(ctx context.Context) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			t1 := time.Now()
			reqID := middleware.GetReqID(r.Context())
			//nolint:contextcheck
			defer func() {
				Info(ctx,
					"http req",
					"req-id", reqID,
					"method", r.Method,
					"uri", r.RequestURI,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"ua", r.Header.Get("User-Agent"),
					"d", time.Since(t1))
			}()
			reqCtx := CopyFromContext(ctx, r.Context())
			next.ServeHTTP(ww, r.WithContext(With(reqCtx, "req-id", reqID)))
		}
		return http.HandlerFunc(fn)
	}
}
