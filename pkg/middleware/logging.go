package middleware

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/quarry-data/quarry/pkg/composables"
	"github.com/quarry-data/quarry/pkg/constants"
	"github.com/quarry-data/quarry/pkg/httpapi"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// LogRequests attaches a request-scoped logger to the context, emits one
// structured line per request, and converts panics into 500 responses.
func LogRequests(logger *logrus.Logger, requestIDHeader string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(requestIDHeader)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			w.Header().Set(requestIDHeader, requestID)

			entry := logger.WithFields(logrus.Fields{
				"request-id": requestID,
				"method":     r.Method,
				"path":       r.URL.Path,
			})

			ctx := composables.WithLogger(r.Context(), entry)
			ctx = context.WithValue(ctx, constants.RequestStart, start)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				if rvr := recover(); rvr != nil {
					entry.WithFields(logrus.Fields{
						"panic": rvr,
						"stack": string(debug.Stack()),
					}).Error("panic while handling request")
					_ = httpapi.WriteError(rec, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
				}
				entry.WithFields(logrus.Fields{
					"status":   rec.status,
					"duration": time.Since(start).String(),
				}).Info("request completed")
			}()

			next.ServeHTTP(rec, r.WithContext(ctx))
		})
	}
}
