package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// Recover turns handler panics into a 500 and logs the stack trace.
func Recover(log zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error().
					Str("request_id", RequestIDFrom(r.Context())).
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("http_panic")

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"error":   http.StatusText(http.StatusInternalServerError),
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
