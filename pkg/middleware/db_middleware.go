package middleware

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quarry-data/quarry/pkg/composables"
)

// WithPool makes the database pool available to repositories via context.
// Handlers that need transactional scope wrap their work in composables.InTx.
func WithPool(pool *pgxpool.Pool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := composables.WithPool(r.Context(), pool)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
