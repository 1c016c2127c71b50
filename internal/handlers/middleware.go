package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rschio/paytrack/internal/web"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func middlewareWeb(tracer trace.Tracer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), "web")
			defer span.End()

			span.SetAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			)

			v := web.Values{
				TraceID: span.SpanContext().TraceID().String(),
				Tracer:  tracer,
				Now:     time.Now().UTC(),
			}
			ctx = web.SetValues(ctx, &v)

			next.ServeHTTP(w, r.WithContext(ctx))

			span.SetAttributes(attribute.Int("http.status_code", v.StatusCode))
			if v.StatusCode >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(v.StatusCode))
			}
		})
	}
}

func middlewareLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			v := web.GetValues(ctx)

			log.InfoContext(ctx, "request started", "method", r.Method, "path", r.URL.Path,
				"remoteaddr", r.RemoteAddr, "request_id", middleware.GetReqID(ctx))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			v.StatusCode = status

			log.InfoContext(ctx, "request completed", "method", r.Method, "path", r.URL.Path,
				"statuscode", status, "bytes", ww.BytesWritten(), "since", time.Since(v.Now).String())
		})
	}
}

func rateLimited(w http.ResponseWriter, r *http.Request) {
	web.RespondError(r.Context(), w, "too many requests", http.StatusTooManyRequests)
}
