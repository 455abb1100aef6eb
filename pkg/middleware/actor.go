package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/quarry-data/quarry/pkg/composables"
	"github.com/quarry-data/quarry/pkg/httpapi"
)

// WithActorID resolves the calling user from the configured identity header.
// Upstream authentication terminates before this service, so the header is
// trusted. Requests without the header pass through; endpoints that require
// an identity fail later via composables.UseActorID. A malformed header is
// rejected up front.
func WithActorID(header string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(header)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			actorID, err := uuid.Parse(raw)
			if err != nil {
				_ = httpapi.WriteError(w, http.StatusUnauthorized, "INVALID_ACTOR", "identity header is not a valid UUID", nil)
				return
			}
			ctx := composables.WithActorID(r.Context(), actorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
