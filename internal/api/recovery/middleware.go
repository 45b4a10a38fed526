// Package recovery turns handler panics into 500 responses.
package recovery

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/companionos/companion/internal/api/respond"
)

// Middleware returns a mux-compatible middleware that logs panics with their
// stack to log and answers with a JSON 500.
func Middleware(log zerolog.Logger) func(http.Handler) http.Handler {
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
					Str("panic", fmt.Sprint(rec)).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("handler panic recovered")
				respond.WriteInternalError(w, "internal error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
