package shared

import (
	"errors"
	"log/slog"
	"net/http"
)

// IdempotencyHeader carries the client-chosen key for retry-safe
// mutations.
const IdempotencyHeader = "Idempotency-Key"

// IdempotencyMiddleware rejects repeated mutating requests that carry a
// previously seen key. Requests without the header pass through.
func IdempotencyMiddleware(store *IdempotencyStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get(IdempotencyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			err := store.CheckAndInsert(r.Context(), key, r.URL.Path)
			switch {
			case err == nil:
				sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
				next.ServeHTTP(sw, r)
				if sw.status >= http.StatusInternalServerError {
					// The mutation did not take effect; release the key
					// so the client can retry with the same one.
					if derr := store.Delete(r.Context(), key, r.URL.Path); derr != nil {
						logger.Error("idempotency release", slog.Any("error", derr))
					}
				}
			case errors.Is(err, ErrIdempotencyConflict):
				http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			case errors.Is(err, ErrIdempotencyKeyInvalid):
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				logger.Error("idempotency check", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
